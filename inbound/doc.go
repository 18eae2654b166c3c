// Package inbound exposes the registry webhook endpoints over HTTP.
//
// The primary and failover URLs behave identically. Both read a bounded
// body, hand it to an Acceptor and translate the outcome into 202, 400, 401
// or 500 so the registry knows whether to redeliver.
package inbound
