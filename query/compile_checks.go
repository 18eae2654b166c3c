package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-tendlc/core"
)

var (
	_ gocmd.Querier[GetRegistrationMessage, core.RegistrationRecord]  = (*GetRegistrationQuery)(nil)
	_ gocmd.Querier[DueForRecheckMessage, []core.RegistrationRecord] = (*DueForRecheckQuery)(nil)
	_ RegistrationReader                                             = (*core.Service)(nil)
	_ RecheckLister                                                  = (core.RecordStore)(nil)
)
