package internaldefs

import (
	userauth "github.com/MrEthical07/goUserAuth"
)

// CounterDef names one engine counter for export. Flow is the engine
// operation the counter belongs to; exporters that support attributes
// attach it to every data point.
type CounterDef struct {
	ID   userauth.MetricID
	Name string
	Help string
	Flow string
}

// Flow labels.
const (
	FlowLogin     = "login"
	FlowRefresh   = "refresh"
	FlowAccess    = "access"
	FlowAuthorize = "authorize"
	FlowUsers     = "users"
	FlowCache     = "cache"
	FlowAudit     = "audit"
)

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   userauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: userauth.MetricLoginSuccess, Name: "userauth_login_success_total", Help: "Successful logins.", Flow: FlowLogin},
	{ID: userauth.MetricLoginFailure, Name: "userauth_login_failure_total", Help: "Failed logins.", Flow: FlowLogin},
	{ID: userauth.MetricValidateUserFailure, Name: "userauth_validate_user_failure_total", Help: "Password checks rejected for an unknown email or wrong password.", Flow: FlowLogin},
	{ID: userauth.MetricRefreshSuccess, Name: "userauth_refresh_success_total", Help: "Successful refresh rotations.", Flow: FlowRefresh},
	{ID: userauth.MetricRefreshFailure, Name: "userauth_refresh_failure_total", Help: "Rejected refresh attempts.", Flow: FlowRefresh},
	{ID: userauth.MetricRefreshReuseDetected, Name: "userauth_refresh_reuse_detected_total", Help: "Replayed refresh credentials that burned a chain.", Flow: FlowRefresh},
	{ID: userauth.MetricAccessRejected, Name: "userauth_access_rejected_total", Help: "Access credentials that failed verification.", Flow: FlowAccess},
	{ID: userauth.MetricAuthorizeAllowed, Name: "userauth_authorize_allowed_total", Help: "Authorization checks that passed.", Flow: FlowAuthorize},
	{ID: userauth.MetricAuthorizeDenied, Name: "userauth_authorize_denied_total", Help: "Authorization checks denied for insufficient level.", Flow: FlowAuthorize},
	{ID: userauth.MetricUserCreated, Name: "userauth_user_created_total", Help: "Created users.", Flow: FlowUsers},
	{ID: userauth.MetricUserDuplicate, Name: "userauth_user_duplicate_total", Help: "User creations rejected as duplicate email.", Flow: FlowUsers},
	{ID: userauth.MetricPermissionChanged, Name: "userauth_permission_changed_total", Help: "Permission level changes.", Flow: FlowUsers},
	{ID: userauth.MetricRefreshRevoked, Name: "userauth_refresh_revoked_total", Help: "Explicit refresh chain revocations.", Flow: FlowRefresh},
	{ID: userauth.MetricCacheHit, Name: "userauth_cache_hit_total", Help: "Directory reads served from cache.", Flow: FlowCache},
	{ID: userauth.MetricCacheMiss, Name: "userauth_cache_miss_total", Help: "Directory reads that missed the cache.", Flow: FlowCache},
}

// AuditDropped is exported next to the engine counters but read from the
// audit dispatcher rather than the metrics snapshot.
var AuditDropped = CounterDef{
	Name: "userauth_audit_dropped_total",
	Help: "Routine audit events dropped under dispatcher backpressure.",
	Flow: FlowAudit,
}

var HistogramDefs = []HistogramDef{
	{ID: userauth.MetricValidateLatency, Name: "userauth_validate_latency_seconds", Help: "Access credential validation latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's eight
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array. Missing
// buckets read as zero and extra ones are ignored.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
