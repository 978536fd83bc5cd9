package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/obsguard/obsguard/pkg/logging"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity int

const (
	// AlertInfo - informational alerts
	AlertInfo AlertSeverity = iota
	// AlertWarning - alerts that need attention
	AlertWarning
	// AlertError - alerts that need immediate attention
	AlertError
	// AlertCritical - alerts that need urgent attention
	AlertCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case AlertInfo:
		return "INFO"
	case AlertWarning:
		return "WARNING"
	case AlertError:
		return "ERROR"
	case AlertCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Alert represents an alert raised by the resilience layer
type Alert struct {
	ID          string            `json:"id"`
	Severity    AlertSeverity     `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Source      string            `json:"source"`
	Timestamp   time.Time         `json:"timestamp"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// AlertHandler defines the interface for routing alerts
type AlertHandler interface {
	HandleAlert(ctx context.Context, alert Alert) error
	Name() string
}

// AlertManager routes alerts to registered handlers with per-source rate
// limiting
type AlertManager struct {
	mutex    sync.RWMutex
	handlers []AlertHandler
	logger   *logging.Logger

	alertCounts   map[string]int
	lastReset     time.Time
	rateLimit     int
	resetInterval time.Duration
}

// NewAlertManager creates a new alert manager
func NewAlertManager() *AlertManager {
	return &AlertManager{
		handlers:      make([]AlertHandler, 0),
		logger:        logging.GetLogger(),
		alertCounts:   make(map[string]int),
		lastReset:     time.Now(),
		rateLimit:     100,
		resetInterval: time.Hour,
	}
}

// AddHandler adds an alert handler
func (am *AlertManager) AddHandler(handler AlertHandler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	am.handlers = append(am.handlers, handler)
	am.logger.Info("Alert handler added", "handler", handler.Name())
}

// SendAlert sends an alert to all registered handlers
func (am *AlertManager) SendAlert(ctx context.Context, alert Alert) error {
	am.mutex.Lock()
	allowed := am.checkRateLimit(alert.Source)
	handlers := make([]AlertHandler, len(am.handlers))
	copy(handlers, am.handlers)
	am.mutex.Unlock()

	if !allowed {
		am.logger.Warn("Alert rate limit exceeded",
			"source", alert.Source,
			"title", alert.Title,
		)
		return fmt.Errorf("alert rate limit exceeded for source: %s", alert.Source)
	}

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = fmt.Sprintf("%s-%d", alert.Source, alert.Timestamp.UnixNano())
	}

	am.logger.Info("Sending alert",
		"id", alert.ID,
		"severity", alert.Severity.String(),
		"source", alert.Source,
		"title", alert.Title,
	)

	var lastErr error
	successCount := 0

	for _, handler := range handlers {
		if err := handler.HandleAlert(ctx, alert); err != nil {
			am.logger.Error("Alert handler failed",
				"handler", handler.Name(),
				"alert_id", alert.ID,
				"error", err,
			)
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("all alert handlers failed: %w", lastErr)
	}

	return nil
}

// checkRateLimit enforces per-source limits. Caller must hold the mutex.
func (am *AlertManager) checkRateLimit(source string) bool {
	now := time.Now()

	if now.Sub(am.lastReset) >= am.resetInterval {
		am.alertCounts = make(map[string]int)
		am.lastReset = now
	}

	if am.alertCounts[source] >= am.rateLimit {
		return false
	}

	am.alertCounts[source]++
	return true
}

// LoggingAlertHandler writes alerts to the structured log
type LoggingAlertHandler struct {
	logger *logging.Logger
}

// NewLoggingAlertHandler creates a logging alert handler
func NewLoggingAlertHandler(logger *logging.Logger) *LoggingAlertHandler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &LoggingAlertHandler{logger: logger}
}

// Name implements AlertHandler
func (h *LoggingAlertHandler) Name() string {
	return "logging"
}

// HandleAlert implements AlertHandler
func (h *LoggingAlertHandler) HandleAlert(ctx context.Context, alert Alert) error {
	fields := []interface{}{
		"alert_id", alert.ID,
		"source", alert.Source,
		"title", alert.Title,
		"description", alert.Description,
	}

	switch alert.Severity {
	case AlertCritical, AlertError:
		h.logger.Error("ALERT", fields...)
	case AlertWarning:
		h.logger.Warn("ALERT", fields...)
	default:
		h.logger.Info("ALERT", fields...)
	}

	return nil
}

// degradationAlert builds the alert raised when the degradation level
// escalates to severe or critical
func degradationAlert(level DegradationLevel, recommendations []string) Alert {
	severity := AlertError
	if level == LevelCritical {
		severity = AlertCritical
	}

	description := "telemetry coverage is significantly reduced"
	if len(recommendations) > 0 {
		description = recommendations[0]
	}

	return Alert{
		Severity:    severity,
		Title:       fmt.Sprintf("Degradation level raised to %s", level.String()),
		Description: description,
		Source:      "resilience-manager",
		Tags: map[string]string{
			"degradation_level": level.String(),
		},
	}
}
