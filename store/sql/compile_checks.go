package sqlstore

import (
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-tendlc/core"
)

var (
	_ core.RecordStore            = (*RegistrationStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ queue.Enqueuer              = (*JobQueue)(nil)
	_ queue.ScheduledEnqueuer     = (*JobQueue)(nil)
	_ queue.Dequeuer              = (*JobQueue)(nil)
	_ queue.Delivery              = (*jobDelivery)(nil)
	_ queue.LeaseExtender         = (*jobDelivery)(nil)
	_ core.JobAttempter           = (*jobDelivery)(nil)
)
