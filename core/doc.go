// Package core holds the domain model and pluggable contracts for the
// watchrelay pipeline: the events fetched from the history source, the
// credential lifecycle that keeps source access valid, and the durable
// delivery ledger that makes webhook delivery idempotent across restarts.
package core
