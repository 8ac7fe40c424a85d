package usage

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Health levels derived from today's counters.
const (
	HealthExhausted = "EXHAUSTED"
	HealthHighUsage = "HIGH_USAGE"
	HealthModerate  = "MODERATE_USAGE"
	HealthHealthy   = "HEALTHY"
)

// Day holds LLM usage counters for a single calendar day. It is replaced
// wholesale on rollover.
type Day struct {
	Date        string         `json:"date"`
	TotalCalls  int            `json:"totalCalls"`
	Successes   int            `json:"successes"`
	Failures    int            `json:"failures"`
	QuotaErrors int            `json:"quotaErrors"`
	Tokens      int            `json:"tokens"`
	PerModel    map[string]int `json:"perModel"`
}

// Monitor is the process-wide LLM usage accountant. All mutation goes
// through LogCall; day rollover happens lazily on every entry.
type Monitor struct {
	mu           sync.Mutex
	day          Day
	quotaMarkers []string
	now          func() time.Time
	logger       *logrus.Logger
	metrics      Recorder
}

// Recorder receives usage events for export. Satisfied by the middleware
// metrics; nil disables export.
type Recorder interface {
	RecordLLMCall(model, status string)
}

// NewMonitor creates a usage monitor. quotaMarkers classify error strings
// as quota exhaustion; they are provider-specific and configurable.
func NewMonitor(quotaMarkers []string, metrics Recorder, logger *logrus.Logger) *Monitor {
	if len(quotaMarkers) == 0 {
		quotaMarkers = []string{"429", "quota", "RESOURCE_EXHAUSTED"}
	}
	m := &Monitor{
		quotaMarkers: quotaMarkers,
		now:          time.Now,
		logger:       logger,
		metrics:      metrics,
	}
	m.day = freshDay(m.now())
	return m
}

// SetClock overrides the time source. Tests only.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// LogCall records one LLM invocation. tokens may be zero when unknown.
func (m *Monitor) LogCall(model string, ok bool, tokens int, errString string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()

	m.day.TotalCalls++
	m.day.Tokens += tokens
	if m.day.PerModel == nil {
		m.day.PerModel = make(map[string]int)
	}
	m.day.PerModel[model]++

	status := "success"
	if ok {
		m.day.Successes++
	} else {
		m.day.Failures++
		status = "failure"
		if m.isQuotaError(errString) {
			m.day.QuotaErrors++
			status = "quota"
			m.logger.WithFields(logrus.Fields{
				"model": model,
				"error": errString,
			}).Warn("LLM quota error recorded")
		}
	}

	if m.metrics != nil {
		m.metrics.RecordLLMCall(model, status)
	}
}

// GetDay returns a copy of today's counters.
func (m *Monitor) GetDay() Day {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	day := m.day
	day.PerModel = make(map[string]int, len(m.day.PerModel))
	for k, v := range m.day.PerModel {
		day.PerModel[k] = v
	}
	return day
}

// IsQuotaExhausted reports whether any quota-class error was seen today.
func (m *Monitor) IsQuotaExhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	return m.day.QuotaErrors > 0
}

// GetHealth classifies today's usage.
func (m *Monitor) GetHealth() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	switch {
	case m.day.QuotaErrors > 0:
		return HealthExhausted
	case m.day.TotalCalls > 100:
		return HealthHighUsage
	case m.day.TotalCalls > 50:
		return HealthModerate
	default:
		return HealthHealthy
	}
}

// ClassifyQuota reports whether an error string is a quota-class failure,
// using the configured markers. Exposed so the orchestrator can drive the
// circuit breaker off the same classification.
func (m *Monitor) ClassifyQuota(errString string) bool {
	return m.isQuotaError(errString)
}

// rollover replaces the day on calendar change. Caller holds the lock.
func (m *Monitor) rollover() {
	today := m.now().Format("2006-01-02")
	if m.day.Date != today {
		m.day = freshDay(m.now())
	}
}

func (m *Monitor) isQuotaError(errString string) bool {
	if errString == "" {
		return false
	}
	lowered := strings.ToLower(errString)
	for _, marker := range m.quotaMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func freshDay(now time.Time) Day {
	return Day{
		Date:     now.Format("2006-01-02"),
		PerModel: make(map[string]int),
	}
}
