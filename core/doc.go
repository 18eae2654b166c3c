// Package core holds the 10DLC registration domain: the per-tenant record and
// its status order, the brand and campaign workflows, the reconciliation
// poller and the contracts adapters implement. Transport and storage
// adapters depend on core; core never imports them.
package core
