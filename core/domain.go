package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRecordNotFound                = errors.New("core: registration record not found")
	ErrVersionConflict               = errors.New("core: registration record version conflict")
	ErrInvalidRegistrationTransition = errors.New("core: invalid registration status transition")
	ErrBrandNotRegistered            = errors.New("core: brand id is required before campaign submission")
)

type RegistrationStatus string

const (
	StatusNone            RegistrationStatus = "none"
	StatusPending         RegistrationStatus = "pending"
	StatusRejected        RegistrationStatus = "rejected"
	StatusBrandVerified   RegistrationStatus = "brand_verified"
	StatusCampaignPending RegistrationStatus = "campaign_pending"
	StatusApproved        RegistrationStatus = "approved"
)

const (
	CampaignStatusSubmitted = "submitted"

	DefaultDeliveryRate  = 0.85
	ElevatedDeliveryRate = 0.99
)

// Rank orders statuses along none < pending < {brand_verified, rejected} < campaign_pending < approved.
func (s RegistrationStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusBrandVerified, StatusRejected:
		return 2
	case StatusCampaignPending:
		return 3
	case StatusApproved:
		return 4
	default:
		return 0
	}
}

func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusRejected, StatusBrandVerified, StatusCampaignPending, StatusApproved:
		return true
	default:
		return false
	}
}

func ParseRegistrationStatus(value string) RegistrationStatus {
	status := RegistrationStatus(strings.TrimSpace(strings.ToLower(value)))
	if status == "" || !status.Valid() {
		return StatusNone
	}
	return status
}

// CanTransition reports whether an automatic write may move a record from
// one status to another. Rejection wins over every state except approved,
// approved is absorbing, and all other moves must not go backward.
func CanTransition(from RegistrationStatus, to RegistrationStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from == StatusApproved {
		return false
	}
	if to == StatusRejected {
		return true
	}
	return to.Rank() >= from.Rank()
}

// RegistrationRecord is the per-tenant 10DLC registration state.
type RegistrationRecord struct {
	ID                           string             `json:"id"`
	TenantID                     string             `json:"tenantId"`
	Status                       RegistrationStatus `json:"status"`
	BrandID                      string             `json:"brandId,omitempty"`
	TCRBrandID                   string             `json:"tcrBrandId,omitempty"`
	CampaignID                   string             `json:"campaignId,omitempty"`
	CampaignStatus               string             `json:"campaignStatus,omitempty"`
	RejectionReason              string             `json:"rejectionReason,omitempty"`
	PhoneNumber                  string             `json:"phoneNumber,omitempty"`
	RegisteredAt                 *time.Time         `json:"registeredAt,omitempty"`
	ApprovedAt                   *time.Time         `json:"approvedAt,omitempty"`
	NextCheckAt                  *time.Time         `json:"nextCheckAt,omitempty"`
	CampaignSuspended            bool               `json:"campaignSuspended"`
	CampaignSuspendedAt          *time.Time         `json:"campaignSuspendedAt,omitempty"`
	CampaignSuspendedReason      string             `json:"campaignSuspendedReason,omitempty"`
	NumberAssignedAt             *time.Time         `json:"numberAssignedAt,omitempty"`
	NumberAssignmentError        string             `json:"numberAssignmentError,omitempty"`
	UsingElevatedDeliveryProfile bool               `json:"usingElevatedDeliveryProfile"`
	DeliveryRate                 float64            `json:"deliveryRate"`
	Version                      int64              `json:"version"`
	CreatedAt                    time.Time          `json:"createdAt"`
	UpdatedAt                    time.Time          `json:"updatedAt"`
}

// NewRegistrationRecord returns the implicit "none" record for a tenant.
func NewRegistrationRecord(tenantID string, now time.Time) RegistrationRecord {
	return RegistrationRecord{
		TenantID:     strings.TrimSpace(tenantID),
		Status:       StatusNone,
		DeliveryRate: DefaultDeliveryRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TransitionTo applies the status guard and keeps rejection reasons and
// first-entry timestamps consistent with the new status.
func (r *RegistrationRecord) TransitionTo(status RegistrationStatus, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == "" {
		r.Status = StatusNone
	}
	if !CanTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRegistrationTransition, r.Status, status)
	}
	r.applyStatus(status, reason, now)
	return nil
}

// Restart moves a none or rejected record back to pending. Only an explicit
// brand resubmission may do this.
func (r *RegistrationRecord) Restart(now time.Time) error {
	if r == nil {
		return nil
	}
	switch r.Status {
	case "", StatusNone, StatusRejected, StatusPending:
		r.applyStatus(StatusPending, "", now)
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRegistrationTransition, r.Status, StatusPending)
	}
}

func (r *RegistrationRecord) applyStatus(status RegistrationStatus, reason string, now time.Time) {
	r.Status = status
	if status == StatusRejected {
		r.RejectionReason = strings.TrimSpace(reason)
	} else {
		r.RejectionReason = ""
	}
	if status == StatusPending && r.RegisteredAt == nil {
		r.RegisteredAt = timePtr(now)
	}
	if status == StatusApproved {
		if r.ApprovedAt == nil {
			r.ApprovedAt = timePtr(now)
		}
		r.UsingElevatedDeliveryProfile = true
		r.DeliveryRate = ElevatedDeliveryRate
	}
	r.UpdatedAt = now
}

// AssignBrand stores registry brand identifiers once; later values never
// replace a known identifier. It reports whether anything changed.
func (r *RegistrationRecord) AssignBrand(brandID string, tcrBrandID string) bool {
	if r == nil {
		return false
	}
	changed := false
	if brandID = strings.TrimSpace(brandID); brandID != "" && r.BrandID == "" {
		r.BrandID = brandID
		changed = true
	}
	if tcrBrandID = strings.TrimSpace(tcrBrandID); tcrBrandID != "" && r.TCRBrandID == "" {
		r.TCRBrandID = tcrBrandID
		changed = true
	}
	return changed
}

func (r *RegistrationRecord) AssignCampaign(campaignID string) bool {
	if r == nil {
		return false
	}
	if campaignID = strings.TrimSpace(campaignID); campaignID != "" && r.CampaignID == "" {
		r.CampaignID = campaignID
		return true
	}
	return false
}

func (r *RegistrationRecord) Suspend(reason string, now time.Time) {
	if r == nil {
		return
	}
	if !r.CampaignSuspended || r.CampaignSuspendedAt == nil {
		r.CampaignSuspendedAt = timePtr(now)
	}
	r.CampaignSuspended = true
	r.CampaignSuspendedReason = strings.TrimSpace(reason)
	r.UpdatedAt = now
}

func (r *RegistrationRecord) MarkNumberAssigned(now time.Time) {
	if r == nil {
		return
	}
	r.NumberAssignedAt = timePtr(now)
	r.NumberAssignmentError = ""
	r.CampaignSuspended = false
	r.CampaignSuspendedAt = nil
	r.CampaignSuspendedReason = ""
	r.UpdatedAt = now
}

func (r *RegistrationRecord) MarkNumberUnassigned(now time.Time) {
	if r == nil {
		return
	}
	r.NumberAssignedAt = nil
	r.UpdatedAt = now
}

// Profile is the tenant organization data submitted as a brand.
type Profile struct {
	OrganizationName string `json:"organizationName" validate:"required,min=1,max=100"`
	ContactEmail     string `json:"contactEmail" validate:"required,max=100,email"`
	EIN              string `json:"ein,omitempty" validate:"omitempty,ein"`
	Phone            string `json:"phone,omitempty" validate:"omitempty,e164"`
	Street           string `json:"street,omitempty" validate:"omitempty,max=100"`
	City             string `json:"city,omitempty" validate:"omitempty,max=100"`
	State            string `json:"state,omitempty" validate:"omitempty,len=2,alpha"`
	PostalCode       string `json:"postalCode,omitempty" validate:"omitempty,zipcode"`
	Country          string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Website          string `json:"website,omitempty" validate:"omitempty,max=100,url"`
	Vertical         string `json:"vertical,omitempty" validate:"omitempty,max=50"`
}

type RegisterBrandRequest struct {
	TenantID    string
	Profile     Profile
	PhoneNumber string
}

type BrandSubmission struct {
	EntityType         string
	DisplayName        string
	CompanyName        string
	Email              string
	Phone              string
	EIN                string
	Street             string
	City               string
	State              string
	PostalCode         string
	Country            string
	Website            string
	Vertical           string
	WebhookURL         string
	WebhookFailoverURL string
}

type BrandSubmissionResult struct {
	BrandID    string
	TCRBrandID string
	Status     string
}

// CampaignDeclaration is the use-case declaration submitted for a brand.
type CampaignDeclaration struct {
	UseCase            string
	Description        string
	MessageFlow        string
	SampleMessages     []string
	OptInKeywords      []string
	OptOutKeywords     []string
	HelpKeywords       []string
	OptInMessage       string
	OptOutMessage      string
	HelpMessage        string
	EmbeddedLink       bool
	EmbeddedPhone      bool
	AgeGated           bool
	DirectLending      bool
	SubscriberOptIn    bool
	SubscriberOptOut   bool
	SubscriberHelp     bool
	WebhookURL         string
	WebhookFailoverURL string
}

type CampaignSubmission struct {
	BrandID     string
	Declaration CampaignDeclaration
}

type CampaignSubmissionResult struct {
	CampaignID string
	Status     string
}

type BrandOutcome string

const (
	BrandOutcomePending  BrandOutcome = "pending"
	BrandOutcomeVerified BrandOutcome = "verified"
	BrandOutcomeRejected BrandOutcome = "rejected"
)

type BrandStatusResult struct {
	BrandID        string
	Status         string
	IdentityStatus string
	FailureReason  string
}

// Outcome classifies a registry brand status lookup.
func (r BrandStatusResult) Outcome() BrandOutcome {
	identity := strings.ToUpper(strings.TrimSpace(r.IdentityStatus))
	status := strings.ToUpper(strings.TrimSpace(r.Status))
	switch {
	case identity == "VERIFIED", identity == "VETTED_VERIFIED":
		return BrandOutcomeVerified
	case identity == "FAILED", status == "REGISTRATION_FAILED", status == "FAILED", status == "REJECTED":
		return BrandOutcomeRejected
	default:
		return BrandOutcomePending
	}
}

// RecordKey addresses a registration record by exactly one identifier.
type RecordKey struct {
	TenantID    string
	BrandID     string
	CampaignID  string
	PhoneNumber string
}

func (k RecordKey) String() string {
	switch {
	case strings.TrimSpace(k.TenantID) != "":
		return "tenant:" + strings.TrimSpace(k.TenantID)
	case strings.TrimSpace(k.BrandID) != "":
		return "brand:" + strings.TrimSpace(k.BrandID)
	case strings.TrimSpace(k.CampaignID) != "":
		return "campaign:" + strings.TrimSpace(k.CampaignID)
	case strings.TrimSpace(k.PhoneNumber) != "":
		return "phone:" + strings.TrimSpace(k.PhoneNumber)
	default:
		return ""
	}
}

func (k RecordKey) Fields() map[string]any {
	fields := map[string]any{}
	if value := strings.TrimSpace(k.TenantID); value != "" {
		fields["tenant_id"] = value
	}
	if value := strings.TrimSpace(k.BrandID); value != "" {
		fields["brand_id"] = value
	}
	if value := strings.TrimSpace(k.CampaignID); value != "" {
		fields["campaign_id"] = value
	}
	if value := strings.TrimSpace(k.PhoneNumber); value != "" {
		fields["phone_number"] = value
	}
	return fields
}

func timePtr(value time.Time) *time.Time {
	copied := value
	return &copied
}
