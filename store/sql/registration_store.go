package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tendlc/core"
)

// RegistrationStore is the bun backed core.RecordStore. Writes are guarded by
// the version column so concurrent webhook, poller and workflow updates
// cannot overwrite each other.
type RegistrationStore struct {
	db   *bun.DB
	repo repository.Repository[*registrationRecord]
}

func NewRegistrationStore(db *bun.DB) (*RegistrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*registrationRecord](db, registrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid registration repository wiring: %w", err)
		}
	}
	return &RegistrationStore{db: db, repo: repo}, nil
}

func (s *RegistrationStore) Get(ctx context.Context, tenantID string) (core.RegistrationRecord, error) {
	return s.findBy(ctx, "tenant_id", tenantID)
}

func (s *RegistrationStore) FindByBrandID(ctx context.Context, brandID string) (core.RegistrationRecord, error) {
	return s.findBy(ctx, "brand_id", brandID)
}

func (s *RegistrationStore) FindByCampaignID(ctx context.Context, campaignID string) (core.RegistrationRecord, error) {
	return s.findBy(ctx, "campaign_id", campaignID)
}

func (s *RegistrationStore) FindByPhoneNumber(ctx context.Context, phoneNumber string) (core.RegistrationRecord, error) {
	return s.findBy(ctx, "phone_number", phoneNumber)
}

func (s *RegistrationStore) findBy(ctx context.Context, column string, value string) (core.RegistrationRecord, error) {
	if s == nil || s.db == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return core.RegistrationRecord{}, core.ErrRecordNotFound
	}
	record, err := findRegistration(ctx, s.db, column, value)
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	if record == nil {
		return core.RegistrationRecord{}, core.ErrRecordNotFound
	}
	return record.toDomain(), nil
}

// ListDueForRecheck returns pending records whose next check time has
// passed, oldest check first.
func (s *RegistrationStore) ListDueForRecheck(ctx context.Context, now time.Time, limit int) ([]core.RegistrationRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: registration store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.SelectBy("status", "=", string(core.StatusPending)),
		repository.SelectByTimetz("next_check_at", "<=", now.UTC()),
		repository.OrderBy("next_check_at ASC"),
		repository.OrderBy("tenant_id ASC"),
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.RegistrationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// CompareAndSwap inserts the record when expectedVersion is 0 and otherwise
// updates it only if the stored version still matches.
func (s *RegistrationStore) CompareAndSwap(
	ctx context.Context,
	record core.RegistrationRecord,
	expectedVersion int64,
) (core.RegistrationRecord, error) {
	if s == nil || s.db == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	record.TenantID = strings.TrimSpace(record.TenantID)
	if record.TenantID == "" {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	now := time.Now().UTC()

	var out core.RegistrationRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if expectedVersion == 0 {
			model := newRegistrationRecord(record, now)
			model.ID = uuid.NewString()
			model.Version = 1
			if _, insertErr := tx.NewInsert().Model(model).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return core.ErrVersionConflict
				}
				return insertErr
			}
			out = model.toDomain()
			return nil
		}

		current, err := findRegistration(ctx, tx, "tenant_id", record.TenantID)
		if err != nil {
			return err
		}
		if current == nil || current.Version != expectedVersion {
			return core.ErrVersionConflict
		}

		model := newRegistrationRecord(record, now)
		model.ID = current.ID
		model.CreatedAt = current.CreatedAt
		model.Version = expectedVersion + 1
		result, err := tx.NewUpdate().
			Model(model).
			ExcludeColumn("id", "tenant_id", "created_at").
			Where("id = ?", current.ID).
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, rowsErr := result.RowsAffected(); rowsErr == nil && affected == 0 {
			return core.ErrVersionConflict
		}
		out = model.toDomain()
		return nil
	})
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	return out, nil
}

func findRegistration(ctx context.Context, db bun.IDB, column string, value string) (*registrationRecord, error) {
	record := &registrationRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}

func newRegistrationRecord(in core.RegistrationRecord, now time.Time) *registrationRecord {
	status := in.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.StatusNone
	}
	createdAt := in.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := in.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return &registrationRecord{
		ID:                           strings.TrimSpace(in.ID),
		TenantID:                     strings.TrimSpace(in.TenantID),
		Status:                       string(status),
		BrandID:                      strings.TrimSpace(in.BrandID),
		TCRBrandID:                   strings.TrimSpace(in.TCRBrandID),
		CampaignID:                   strings.TrimSpace(in.CampaignID),
		CampaignStatus:               strings.TrimSpace(in.CampaignStatus),
		RejectionReason:              in.RejectionReason,
		PhoneNumber:                  strings.TrimSpace(in.PhoneNumber),
		RegisteredAt:                 utcPtr(in.RegisteredAt),
		ApprovedAt:                   utcPtr(in.ApprovedAt),
		NextCheckAt:                  utcPtr(in.NextCheckAt),
		CampaignSuspended:            in.CampaignSuspended,
		CampaignSuspendedAt:          utcPtr(in.CampaignSuspendedAt),
		CampaignSuspendedReason:      in.CampaignSuspendedReason,
		NumberAssignedAt:             utcPtr(in.NumberAssignedAt),
		NumberAssignmentError:        in.NumberAssignmentError,
		UsingElevatedDeliveryProfile: in.UsingElevatedDeliveryProfile,
		DeliveryRate:                 in.DeliveryRate,
		CreatedAt:                    createdAt,
		UpdatedAt:                    updatedAt,
	}
}

func (r *registrationRecord) toDomain() core.RegistrationRecord {
	if r == nil {
		return core.RegistrationRecord{}
	}
	return core.RegistrationRecord{
		ID:                           r.ID,
		TenantID:                     r.TenantID,
		Status:                       core.ParseRegistrationStatus(r.Status),
		BrandID:                      r.BrandID,
		TCRBrandID:                   r.TCRBrandID,
		CampaignID:                   r.CampaignID,
		CampaignStatus:               r.CampaignStatus,
		RejectionReason:              r.RejectionReason,
		PhoneNumber:                  r.PhoneNumber,
		RegisteredAt:                 utcPtr(r.RegisteredAt),
		ApprovedAt:                   utcPtr(r.ApprovedAt),
		NextCheckAt:                  utcPtr(r.NextCheckAt),
		CampaignSuspended:            r.CampaignSuspended,
		CampaignSuspendedAt:          utcPtr(r.CampaignSuspendedAt),
		CampaignSuspendedReason:      r.CampaignSuspendedReason,
		NumberAssignedAt:             utcPtr(r.NumberAssignedAt),
		NumberAssignmentError:        r.NumberAssignmentError,
		UsingElevatedDeliveryProfile: r.UsingElevatedDeliveryProfile,
		DeliveryRate:                 r.DeliveryRate,
		Version:                      r.Version,
		CreatedAt:                    r.CreatedAt.UTC(),
		UpdatedAt:                    r.UpdatedAt.UTC(),
	}
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
