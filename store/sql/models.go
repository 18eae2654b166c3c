package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type registrationRecord struct {
	bun.BaseModel `bun:"table:tendlc_registrations,alias:tr"`

	ID                           string     `bun:"id,pk"`
	TenantID                     string     `bun:"tenant_id,notnull"`
	Status                       string     `bun:"status,notnull"`
	BrandID                      string     `bun:"brand_id,nullzero"`
	TCRBrandID                   string     `bun:"tcr_brand_id,nullzero"`
	CampaignID                   string     `bun:"campaign_id,nullzero"`
	CampaignStatus               string     `bun:"campaign_status,nullzero"`
	RejectionReason              string     `bun:"rejection_reason,nullzero"`
	PhoneNumber                  string     `bun:"phone_number,nullzero"`
	RegisteredAt                 *time.Time `bun:"registered_at,nullzero"`
	ApprovedAt                   *time.Time `bun:"approved_at,nullzero"`
	NextCheckAt                  *time.Time `bun:"next_check_at,nullzero"`
	CampaignSuspended            bool       `bun:"campaign_suspended,notnull"`
	CampaignSuspendedAt          *time.Time `bun:"campaign_suspended_at,nullzero"`
	CampaignSuspendedReason      string     `bun:"campaign_suspended_reason,nullzero"`
	NumberAssignedAt             *time.Time `bun:"number_assigned_at,nullzero"`
	NumberAssignmentError        string     `bun:"number_assignment_error,nullzero"`
	UsingElevatedDeliveryProfile bool       `bun:"using_elevated_delivery_profile,notnull"`
	DeliveryRate                 float64    `bun:"delivery_rate,notnull"`
	Version                      int64      `bun:"version,notnull"`
	CreatedAt                    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:tendlc_jobs,alias:tj"`

	ID             string         `bun:"id,pk"`
	JobID          string         `bun:"job_id,notnull"`
	ScriptPath     string         `bun:"script_path,nullzero"`
	Parameters     map[string]any `bun:"parameters,type:jsonb,notnull"`
	IdempotencyKey *string        `bun:"idempotency_key"`
	DedupPolicy    string         `bun:"dedup_policy,nullzero"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	AvailableAt    time.Time      `bun:"available_at,notnull"`
	LeasedUntil    *time.Time     `bun:"leased_until,nullzero"`
	LastError      string         `bun:"last_error,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
