package internaldefs

import (
	"github.com/fieldops/agentauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   agentauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   agentauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: agentauth.MetricRegisterSuccess, Name: "agentauth_register_success_total", Help: "Agent identities created."},
	{ID: agentauth.MetricRegisterConflict, Name: "agentauth_register_conflict_total", Help: "Registrations rejected for a duplicate email or phone."},
	{ID: agentauth.MetricRegisterInvalid, Name: "agentauth_register_invalid_total", Help: "Registrations rejected for invalid input."},
	{ID: agentauth.MetricLoginSuccess, Name: "agentauth_login_success_total", Help: "Successful logins."},
	{ID: agentauth.MetricLoginFailure, Name: "agentauth_login_failure_total", Help: "Logins rejected as invalid credentials."},
	{ID: agentauth.MetricLoginInactive, Name: "agentauth_login_inactive_total", Help: "Correct-password logins refused for account status."},
	{ID: agentauth.MetricOTPIssued, Name: "agentauth_otp_issued_total", Help: "Passcodes stored and delivered."},
	{ID: agentauth.MetricOTPDeliveryFailure, Name: "agentauth_otp_delivery_failure_total", Help: "Passcodes the mailer could not deliver."},
	{ID: agentauth.MetricOTPVerified, Name: "agentauth_otp_verified_total", Help: "Successful passcode confirmations."},
	{ID: agentauth.MetricOTPExpired, Name: "agentauth_otp_expired_total", Help: "Confirmations with no pending passcode."},
	{ID: agentauth.MetricOTPRejected, Name: "agentauth_otp_rejected_total", Help: "Confirmations with a wrong passcode."},
	{ID: agentauth.MetricPasswordResetSuccess, Name: "agentauth_password_reset_success_total", Help: "Credentials replaced by password reset."},
	{ID: agentauth.MetricPasswordResetFailure, Name: "agentauth_password_reset_failure_total", Help: "Refused password resets."},
	{ID: agentauth.MetricTokenValidateSuccess, Name: "agentauth_token_validate_success_total", Help: "Accepted session tokens."},
	{ID: agentauth.MetricTokenValidateFailure, Name: "agentauth_token_validate_failure_total", Help: "Malformed, expired, or refused session tokens."},
	{ID: agentauth.MetricTokenRevoked, Name: "agentauth_token_revoked_total", Help: "Tokens refused because the credential changed."},
	{ID: agentauth.MetricBackendUnavailable, Name: "agentauth_backend_unavailable_total", Help: "Operations failed by the store or cache."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: agentauth.MetricValidateLatency, Name: "agentauth_validate_latency_seconds", Help: "ValidateToken latency."},
}

// AuditDroppedName is the counter for audit events lost to dispatcher backpressure.
const (
	AuditDroppedName = "agentauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine keeps one more
// bucket for +Inf.
var HistogramUpperBounds = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals. The last element is the
// total observation count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
