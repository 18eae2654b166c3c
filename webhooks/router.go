package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-tendlc/core"
)

// RegistrationHandlers applies routed events to registration records.
// *core.Service implements it.
type RegistrationHandlers interface {
	HandleBrandAdded(ctx context.Context, brandID string, tcrBrandID string) error
	HandleBrandIdentity(ctx context.Context, brandID string, identityStatus string, description string) error
	HandleBrandVetting(ctx context.Context, brandID string, vettingStatus string) error
	HandleCampaignUpdate(ctx context.Context, campaignID string, brandID string, campaignStatus string, failureReasons string) error
	HandleCampaignEvent(ctx context.Context, campaignID string, eventStatus string, description string) error
	HandleNumberAssignment(ctx context.Context, phoneNumber string, campaignID string, assignmentStatus string, failureReason string) error
}

type Router struct {
	handlers RegistrationHandlers
	logger   core.Logger
}

func NewRouter(handlers RegistrationHandlers, logger core.Logger) *Router {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Router{handlers: handlers, logger: logger}
}

// Route dispatches one verified event. Handler failures are returned so the
// caller can retry the delivery.
func (r *Router) Route(ctx context.Context, event Event) error {
	if r == nil || r.handlers == nil {
		return fmt.Errorf("webhooks: router requires registration handlers")
	}
	switch evt := event.(type) {
	case BrandAdded:
		return r.handlers.HandleBrandAdded(ctx, evt.BrandID, evt.TCRBrandID)
	case BrandIdentityUpdate:
		return r.handlers.HandleBrandIdentity(ctx, evt.BrandID, evt.IdentityStatus, evt.Description)
	case BrandVettingUpdate:
		return r.handlers.HandleBrandVetting(ctx, evt.BrandID, evt.VettingStatus)
	case CampaignUpdate:
		return r.handlers.HandleCampaignUpdate(ctx, evt.CampaignID, evt.BrandID, evt.CampaignStatus, strings.Join(evt.FailureReasons, "; "))
	case CampaignNotice:
		return r.handlers.HandleCampaignEvent(ctx, evt.CampaignID, evt.Status, evt.Description)
	case PhoneNumberAssignment:
		return r.handlers.HandleNumberAssignment(ctx, evt.PhoneNumber, evt.CampaignID, evt.Status, evt.FailureReason)
	case nil:
		return fmt.Errorf("%w: event is required", ErrMalformedPayload)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventType, event)
	}
}

// JobHandler runs queued webhook deliveries. Payloads that can never parse
// are logged and dropped instead of being retried.
func (r *Router) JobHandler() core.JobHandler {
	return func(ctx context.Context, msg *core.JobExecutionMessage) error {
		if msg == nil {
			return fmt.Errorf("webhooks: job message is required")
		}
		eventID := paramString(msg.Parameters, core.JobParamEventID)
		payload := paramString(msg.Parameters, core.JobParamPayload)

		event, err := ParseEvent([]byte(payload))
		if err != nil {
			level := r.logger.Error
			if errors.Is(err, ErrUnknownEventType) {
				level = r.logger.Warn
			}
			level("webhook event dropped", "event_id", eventID, "error", err.Error())
			return nil
		}
		if err := r.Route(ctx, event); err != nil {
			r.logger.Error("webhook event handling failed",
				"event_id", eventID,
				"event_type", string(event.Type()),
				"error", err.Error(),
			)
			return err
		}
		return nil
	}
}

func paramString(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	switch value := params[key].(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}
