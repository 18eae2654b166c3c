package query

import "strings"

const (
	TypeGetRegistration = "tendlc.query.registration.get"
	TypeDueForRecheck   = "tendlc.query.registration.due"
)

type GetRegistrationMessage struct {
	TenantID string
}

func (GetRegistrationMessage) Type() string { return TypeGetRegistration }

func (m GetRegistrationMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type DueForRecheckMessage struct {
	Limit int
}

func (DueForRecheckMessage) Type() string { return TypeDueForRecheck }

func (m DueForRecheckMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
