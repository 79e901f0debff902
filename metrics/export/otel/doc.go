// Package otel publishes goUserAuth engine metrics through an
// OpenTelemetry meter.
//
// Each engine counter becomes an Int64ObservableCounter carrying a "flow"
// attribute (login, refresh, access, authorize, users, cache, audit). The
// validate-latency histogram becomes a "<name>_bucket" gauge with one data
// point per "le" bound plus a "<name>_count" gauge. One callback reads the
// engine snapshot per collection; the caller owns the MeterProvider.
package otel
