package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names used across the tendlc process.
const (
	NameService  = "tendlc"
	NameRegistry = "tendlc.registry"
	NameWebhooks = "tendlc.webhooks"
	NameEvents   = "tendlc.events"
	NameInbound  = "tendlc.inbound"
	NameWorker   = "tendlc.worker"
)

// Resolve picks provider over logger over a nop logger and returns the
// logger registered under name. An empty name resolves NameService.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = NameService
	}
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves like Resolve and also returns the go-job views of
// the result, for the job worker and its task commanders.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, job.GoLoggerProvider(resolvedProvider), job.GoLogger(resolvedLogger)
}

// WorkerLogger is the go-job logger for the job worker.
func WorkerLogger(provider glog.LoggerProvider) job.Logger {
	_, _, _, logger := ResolveForJob(NameWorker, provider, nil)
	return logger
}
