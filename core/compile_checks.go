package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ RecordStore = (*MemoryRecordStore)(nil)
	_ JobEnqueuer = (*MemoryJobQueue)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
