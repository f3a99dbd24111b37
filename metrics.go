package agentauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter. Values are stable within a release and index
// [MetricsSnapshot.Counters].
type MetricID uint16

const (
	// MetricRegisterSuccess counts created identities.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterConflict counts registrations rejected for a duplicate email or phone.
	MetricRegisterConflict
	// MetricRegisterInvalid counts registrations rejected for invalid input.
	MetricRegisterInvalid
	// MetricLoginSuccess counts issued session tokens.
	MetricLoginSuccess
	// MetricLoginFailure counts logins rejected as invalid credentials.
	MetricLoginFailure
	// MetricLoginInactive counts correct-password logins refused for account status.
	MetricLoginInactive
	// MetricOTPIssued counts challenges stored and delivered.
	MetricOTPIssued
	// MetricOTPDeliveryFailure counts challenges whose mail could not be delivered.
	MetricOTPDeliveryFailure
	// MetricOTPVerified counts successful passcode confirmations.
	MetricOTPVerified
	// MetricOTPExpired counts confirmations with no pending challenge.
	MetricOTPExpired
	// MetricOTPRejected counts confirmations with a wrong code.
	MetricOTPRejected
	// MetricPasswordResetSuccess counts replaced credentials.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts refused resets.
	MetricPasswordResetFailure
	// MetricTokenValidateSuccess counts accepted tokens.
	MetricTokenValidateSuccess
	// MetricTokenValidateFailure counts malformed, expired, or refused tokens.
	MetricTokenValidateFailure
	// MetricTokenRevoked counts tokens refused because the credential changed.
	MetricTokenRevoked
	// MetricBackendUnavailable counts operations failed by the store or cache.
	MetricBackendUnavailable
	// MetricValidateLatency is the ValidateToken latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the validate latency histogram.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics returns a recorder that is a no-op unless cfg.Enabled is true.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricValidateLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot copies every counter. Histograms hold per-bucket (non-cumulative) counts for the
// bounds 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms and +Inf.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
