package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "practice_gateway_active_sessions",
		Help: "Number of active practice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practice_gateway_sessions_total",
		Help: "Total number of practice sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "practice_gateway_session_duration_seconds",
		Help:    "Duration of practice sessions in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	turnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practice_gateway_turns_total",
		Help: "Total number of completed model reply turns",
	})

	// Credential metrics
	credentialRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_gateway_credential_requests_total",
		Help: "Total number of credential endpoint requests",
	}, []string{"status"})

	credentialLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "practice_gateway_credential_latency_seconds",
		Help:    "Credential fetch latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Playback metrics
	segmentsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practice_gateway_segments_enqueued_total",
		Help: "Total number of audio segments scheduled for playback",
	})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practice_gateway_interruptions_total",
		Help: "Total number of remote-signalled playback interruptions",
	})

	// Transport metrics
	keepalives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_gateway_keepalives_total",
		Help: "Total number of keepalive frames sent",
	}, []string{"status"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_gateway_audio_bytes_total",
		Help: "Total audio bytes relayed",
	}, []string{"direction"}) // direction: "capture" or "playback"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics (credential endpoint)
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "practice_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single practice session
type Metrics struct {
	sessionID       string
	startTime       time.Time
	credentialStart time.Time
	mu              sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for one session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordCredentialStart marks the beginning of a credential fetch
func (m *Metrics) RecordCredentialStart() {
	m.mu.Lock()
	m.credentialStart = time.Now()
	m.mu.Unlock()
}

// RecordCredentialEnd records the outcome of a credential fetch
func (m *Metrics) RecordCredentialEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.credentialStart.IsZero() {
		credentialLatency.Observe(time.Since(m.credentialStart).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	credentialRequests.WithLabelValues(status).Inc()
}

// RecordTurn records one completed model reply turn
func (m *Metrics) RecordTurn() {
	turnsCompleted.Inc()
}

// RecordSegment records one audio segment scheduled for playback
func (m *Metrics) RecordSegment() {
	segmentsEnqueued.Inc()
}

// RecordInterruption records a remote-signalled interruption
func (m *Metrics) RecordInterruption() {
	interruptions.Inc()
}

// RecordKeepalive records one keepalive attempt
func (m *Metrics) RecordKeepalive(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	keepalives.WithLabelValues(status).Inc()
}

// RecordAudioBytes records audio bytes relayed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
