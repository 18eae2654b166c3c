package query

import (
	"context"
	"time"

	"github.com/goliatone/go-tendlc/core"
)

type RegistrationReader interface {
	GetRegistration(ctx context.Context, tenantID string) (core.RegistrationRecord, error)
}

type RecheckLister interface {
	ListDueForRecheck(ctx context.Context, now time.Time, limit int) ([]core.RegistrationRecord, error)
}

// GetRegistrationQuery returns the implicit "none" record for tenants that
// never registered.
type GetRegistrationQuery struct {
	reader RegistrationReader
}

func NewGetRegistrationQuery(reader RegistrationReader) *GetRegistrationQuery {
	return &GetRegistrationQuery{reader: reader}
}

func (q *GetRegistrationQuery) Query(ctx context.Context, msg GetRegistrationMessage) (core.RegistrationRecord, error) {
	if q == nil || q.reader == nil {
		return core.RegistrationRecord{}, queryDependencyError("query: registration reader is required")
	}
	return q.reader.GetRegistration(ctx, msg.TenantID)
}

type DueForRecheckQuery struct {
	lister RecheckLister
	now    func() time.Time
}

func NewDueForRecheckQuery(lister RecheckLister) *DueForRecheckQuery {
	return &DueForRecheckQuery{
		lister: lister,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (q *DueForRecheckQuery) Query(ctx context.Context, msg DueForRecheckMessage) ([]core.RegistrationRecord, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: recheck lister is required")
	}
	return q.lister.ListDueForRecheck(ctx, q.now(), msg.Limit)
}
