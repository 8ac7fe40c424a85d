package usage

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestMonitor() *Monitor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMonitor(nil, nil, logger)
}

func TestMonitor_LogCallCounters(t *testing.T) {
	m := newTestMonitor()

	m.LogCall("llama3", true, 120, "")
	m.LogCall("llama3", true, 80, "")
	m.LogCall("llama3", false, 0, "connection refused")

	day := m.GetDay()
	assert.Equal(t, 3, day.TotalCalls)
	assert.Equal(t, 2, day.Successes)
	assert.Equal(t, 1, day.Failures)
	assert.Equal(t, 0, day.QuotaErrors)
	assert.Equal(t, 200, day.Tokens)
	assert.Equal(t, 3, day.PerModel["llama3"])
}

func TestMonitor_QuotaClassification(t *testing.T) {
	tests := []struct {
		name    string
		errStr  string
		isQuota bool
	}{
		{"http 429", "request failed with status 429", true},
		{"quota word", "daily quota exceeded", true},
		{"grpc marker", "rpc error: RESOURCE_EXHAUSTED", true},
		{"case insensitive", "Quota limit hit", true},
		{"plain failure", "connection refused", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor()
			assert.Equal(t, tt.isQuota, m.ClassifyQuota(tt.errStr))

			m.LogCall("llama3", false, 0, tt.errStr)
			assert.Equal(t, tt.isQuota, m.IsQuotaExhausted())
		})
	}
}

func TestMonitor_CustomMarkers(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewMonitor([]string{"rate limited"}, nil, logger)

	assert.True(t, m.ClassifyQuota("you are being rate limited"))
	assert.False(t, m.ClassifyQuota("status 429"))
}

func TestMonitor_DayRollover(t *testing.T) {
	m := newTestMonitor()
	day1 := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return day1 })

	m.LogCall("llama3", false, 0, "quota exceeded")
	assert.True(t, m.IsQuotaExhausted())

	// Counters reset lazily when the calendar day changes.
	m.SetClock(func() time.Time { return day1.Add(time.Hour) })
	assert.False(t, m.IsQuotaExhausted())

	day := m.GetDay()
	assert.Equal(t, 0, day.TotalCalls)
	assert.Equal(t, "2025-03-11", day.Date)
}

func TestMonitor_GetHealth(t *testing.T) {
	m := newTestMonitor()
	assert.Equal(t, HealthHealthy, m.GetHealth())

	for i := 0; i < 51; i++ {
		m.LogCall("llama3", true, 0, "")
	}
	assert.Equal(t, HealthModerate, m.GetHealth())

	for i := 0; i < 50; i++ {
		m.LogCall("llama3", true, 0, "")
	}
	assert.Equal(t, HealthHighUsage, m.GetHealth())

	m.LogCall("llama3", false, 0, "quota")
	assert.Equal(t, HealthExhausted, m.GetHealth())
}

type recorderSpy struct {
	statuses []string
}

func (r *recorderSpy) RecordLLMCall(model, status string) {
	r.statuses = append(r.statuses, status)
}

func TestMonitor_ReportsToRecorder(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	spy := &recorderSpy{}
	m := NewMonitor(nil, spy, logger)

	m.LogCall("llama3", true, 0, "")
	m.LogCall("llama3", false, 0, "boom")
	m.LogCall("llama3", false, 0, "429")

	assert.Equal(t, []string{"success", "failure", "quota"}, spy.statuses)
}
