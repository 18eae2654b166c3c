package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedPayload = errors.New("webhooks: malformed event payload")
	ErrUnknownEventType = errors.New("webhooks: unknown event type")
)

type EventType string

const (
	EventBrandAdd              EventType = "BRAND_ADD"
	EventBrandIdentityUpdate   EventType = "BRAND_IDENTITY_STATUS_UPDATE"
	EventBrandVettingUpdate    EventType = "BRAND_VETTING_UPDATE"
	EventCampaignUpdate        EventType = "TCR_CAMPAIGN_UPDATE"
	EventCampaignNotice        EventType = "TELNYX_EVENT"
	EventPhoneNumberAssignment EventType = "PHONE_NUMBER_ASSIGNMENT"
)

// Event is one registry webhook. The concrete type is selected by the
// eventType (or type) discriminator.
type Event interface {
	Type() EventType
	isEvent()
}

type BrandAdded struct {
	BrandID    string
	TCRBrandID string
}

type BrandIdentityUpdate struct {
	BrandID        string
	IdentityStatus string
	Description    string
}

type BrandVettingUpdate struct {
	BrandID       string
	VettingStatus string
}

type CampaignUpdate struct {
	CampaignID     string
	BrandID        string
	CampaignStatus string
	FailureReasons []string
}

// CampaignNotice is an operational registry event about a campaign, such as
// dormancy.
type CampaignNotice struct {
	CampaignID  string
	Status      string
	Description string
}

type PhoneNumberAssignment struct {
	PhoneNumber   string
	CampaignID    string
	Status        string
	FailureReason string
}

func (BrandAdded) Type() EventType            { return EventBrandAdd }
func (BrandIdentityUpdate) Type() EventType   { return EventBrandIdentityUpdate }
func (BrandVettingUpdate) Type() EventType    { return EventBrandVettingUpdate }
func (CampaignUpdate) Type() EventType        { return EventCampaignUpdate }
func (CampaignNotice) Type() EventType        { return EventCampaignNotice }
func (PhoneNumberAssignment) Type() EventType { return EventPhoneNumberAssignment }

func (BrandAdded) isEvent()            {}
func (BrandIdentityUpdate) isEvent()   {}
func (BrandVettingUpdate) isEvent()    {}
func (CampaignUpdate) isEvent()        {}
func (CampaignNotice) isEvent()        {}
func (PhoneNumberAssignment) isEvent() {}

type wireEvent struct {
	ID                  string      `json:"id"`
	EventID             string      `json:"eventId"`
	Meta                wireMeta    `json:"meta"`
	EventType           string      `json:"eventType"`
	Type                string      `json:"type"`
	BrandID             string      `json:"brandId"`
	TCRBrandID          string      `json:"tcrBrandId"`
	CampaignID          string      `json:"campaignId"`
	PhoneNumber         string      `json:"phoneNumber"`
	BrandIdentityStatus string      `json:"brandIdentityStatus"`
	IdentityStatus      string      `json:"identityStatus"`
	VettingStatus       string      `json:"vettingStatus"`
	CampaignStatus      string      `json:"campaignStatus"`
	AssignmentStatus    string      `json:"assignmentStatus"`
	Status              string      `json:"status"`
	Description         string      `json:"description"`
	FailureReasons      reasonsText `json:"failureReasons"`
	FailureReason       string      `json:"failureReason"`
}

type wireMeta struct {
	EventID string `json:"event_id"`
}

// ParseEvent decodes a webhook body into its typed event. Bodies that are not
// JSON objects, lack a discriminator or lack the key field for their type are
// malformed. A discriminator with no known shape yields ErrUnknownEventType.
func ParseEvent(body []byte) (Event, error) {
	wire, err := decodeWireEvent(body)
	if err != nil {
		return nil, err
	}
	discriminator := firstNonEmpty(wire.EventType, wire.Type)
	if discriminator == "" {
		return nil, fmt.Errorf("%w: eventType is required", ErrMalformedPayload)
	}

	switch EventType(strings.ToUpper(discriminator)) {
	case EventBrandAdd:
		if wire.BrandID == "" {
			return nil, missingField(EventBrandAdd, "brandId")
		}
		return BrandAdded{BrandID: wire.BrandID, TCRBrandID: wire.TCRBrandID}, nil
	case EventBrandIdentityUpdate:
		if wire.BrandID == "" {
			return nil, missingField(EventBrandIdentityUpdate, "brandId")
		}
		return BrandIdentityUpdate{
			BrandID:        wire.BrandID,
			IdentityStatus: firstNonEmpty(wire.BrandIdentityStatus, wire.IdentityStatus, wire.Status),
			Description:    wire.Description,
		}, nil
	case EventBrandVettingUpdate:
		if wire.BrandID == "" {
			return nil, missingField(EventBrandVettingUpdate, "brandId")
		}
		return BrandVettingUpdate{BrandID: wire.BrandID, VettingStatus: firstNonEmpty(wire.VettingStatus, wire.Status)}, nil
	case EventCampaignUpdate:
		if wire.CampaignID == "" {
			return nil, missingField(EventCampaignUpdate, "campaignId")
		}
		return CampaignUpdate{
			CampaignID:     wire.CampaignID,
			BrandID:        wire.BrandID,
			CampaignStatus: firstNonEmpty(wire.CampaignStatus, wire.Status),
			FailureReasons: []string(wire.FailureReasons),
		}, nil
	case EventCampaignNotice:
		if wire.CampaignID == "" {
			return nil, missingField(EventCampaignNotice, "campaignId")
		}
		return CampaignNotice{CampaignID: wire.CampaignID, Status: wire.Status, Description: wire.Description}, nil
	case EventPhoneNumberAssignment:
		if wire.PhoneNumber == "" && wire.CampaignID == "" {
			return nil, missingField(EventPhoneNumberAssignment, "phoneNumber")
		}
		return PhoneNumberAssignment{
			PhoneNumber:   wire.PhoneNumber,
			CampaignID:    wire.CampaignID,
			Status:        firstNonEmpty(wire.AssignmentStatus, wire.Status),
			FailureReason: firstNonEmpty(wire.FailureReason, strings.Join(wire.FailureReasons, "; "), wire.Description),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, discriminator)
	}
}

// PayloadEventID returns the event identifier carried in the body, if any.
func PayloadEventID(body []byte) string {
	wire, err := decodeWireEvent(body)
	if err != nil {
		return ""
	}
	return firstNonEmpty(wire.ID, wire.EventID, wire.Meta.EventID)
}

func decodeWireEvent(body []byte) (wireEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return wireEvent{}, fmt.Errorf("%w: body must be a JSON object", ErrMalformedPayload)
	}
	var wire wireEvent
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return wireEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	wire.BrandID = strings.TrimSpace(wire.BrandID)
	wire.TCRBrandID = strings.TrimSpace(wire.TCRBrandID)
	wire.CampaignID = strings.TrimSpace(wire.CampaignID)
	wire.PhoneNumber = strings.TrimSpace(wire.PhoneNumber)
	return wire, nil
}

func missingField(eventType EventType, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedPayload, eventType, field)
}

// reasonsText accepts failure reasons as a string, a list of strings or a
// list of objects with a description.
type reasonsText []string

func (r *reasonsText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			*r = reasonsText{single}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := reasonsText{}
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			var obj struct {
				Description string `json:"description"`
				Reason      string `json:"reason"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return err
			}
			text = firstNonEmpty(obj.Description, obj.Reason)
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	*r = out
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
