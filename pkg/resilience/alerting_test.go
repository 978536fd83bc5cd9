package resilience

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingHandler records the alerts it receives
type capturingHandler struct {
	mutex  sync.Mutex
	alerts []Alert
	fail   bool
}

func (h *capturingHandler) Name() string { return "capturing" }

func (h *capturingHandler) HandleAlert(ctx context.Context, alert Alert) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.fail {
		return assertError("handler down")
	}
	h.alerts = append(h.alerts, alert)
	return nil
}

func (h *capturingHandler) received() []Alert {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out := make([]Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestAlertManager_DeliversToHandlers(t *testing.T) {
	manager := NewAlertManager()
	handler := &capturingHandler{}
	manager.AddHandler(handler)

	err := manager.SendAlert(context.Background(), Alert{
		Severity: AlertWarning,
		Title:    "breaker opened",
		Source:   "circuit-breaker",
	})

	require.NoError(t, err)
	alerts := handler.received()
	require.Len(t, alerts, 1)
	assert.NotEmpty(t, alerts[0].ID, "an ID is assigned when missing")
	assert.False(t, alerts[0].Timestamp.IsZero())
}

func TestAlertManager_AllHandlersFailing(t *testing.T) {
	manager := NewAlertManager()
	manager.AddHandler(&capturingHandler{fail: true})

	err := manager.SendAlert(context.Background(), Alert{
		Title:  "something",
		Source: "test",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all alert handlers failed")
}

func TestAlertManager_PartialFailureStillDelivers(t *testing.T) {
	manager := NewAlertManager()
	broken := &capturingHandler{fail: true}
	working := &capturingHandler{}
	manager.AddHandler(broken)
	manager.AddHandler(working)

	err := manager.SendAlert(context.Background(), Alert{Title: "x", Source: "test"})

	require.NoError(t, err, "one successful handler is enough")
	assert.Len(t, working.received(), 1)
}

func TestAlertManager_RateLimitPerSource(t *testing.T) {
	manager := NewAlertManager()
	handler := &capturingHandler{}
	manager.AddHandler(handler)

	for i := 0; i < 100; i++ {
		require.NoError(t, manager.SendAlert(context.Background(), Alert{Title: "x", Source: "noisy"}))
	}

	err := manager.SendAlert(context.Background(), Alert{Title: "x", Source: "noisy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	// Other sources are unaffected
	assert.NoError(t, manager.SendAlert(context.Background(), Alert{Title: "x", Source: "quiet"}))
	assert.Len(t, handler.received(), 101)
}

func TestAlertSeverity_String(t *testing.T) {
	assert.Equal(t, "INFO", AlertInfo.String())
	assert.Equal(t, "WARNING", AlertWarning.String())
	assert.Equal(t, "ERROR", AlertError.String())
	assert.Equal(t, "CRITICAL", AlertCritical.String())
}

func TestDegradationAlert(t *testing.T) {
	alert := degradationAlert(LevelSevere, []string{"pause non-essential instrumentation"})
	assert.Equal(t, AlertError, alert.Severity)
	assert.Contains(t, alert.Title, "severe")
	assert.Equal(t, "pause non-essential instrumentation", alert.Description)

	alert = degradationAlert(LevelCritical, nil)
	assert.Equal(t, AlertCritical, alert.Severity)
	assert.Equal(t, "critical", alert.Tags["degradation_level"])
}

func TestLoggingAlertHandler(t *testing.T) {
	handler := NewLoggingAlertHandler(nil)
	assert.Equal(t, "logging", handler.Name())
	assert.NoError(t, handler.HandleAlert(context.Background(), Alert{
		Severity: AlertCritical,
		Title:    "test",
	}))
}
