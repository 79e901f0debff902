// Package prometheus renders engine metrics in the Prometheus text format.
//
// [NewPrometheusExporter] takes an Engine and exposes an [http.Handler].
// Counter names follow userauth_*_total and the single histogram is
// userauth_validate_latency_seconds. Nothing is registered globally;
// callers mount the handler themselves.
package prometheus
