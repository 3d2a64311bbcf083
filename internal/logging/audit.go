package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventPropertySet          AuditEventType = "property_set"
	AuditEventPropertyCleared      AuditEventType = "property_cleared"
	AuditEventConstraintsInstalled AuditEventType = "constraints_installed"
	AuditEventConstraintsIgnored   AuditEventType = "constraints_ignored"
	AuditEventRandomProvider       AuditEventType = "random_provider"
	AuditEventNativeToggle         AuditEventType = "native_toggle"
	AuditEventConfigReload         AuditEventType = "config_reload"
	AuditEventPermission           AuditEventType = "permission"
	AuditEventStartup              AuditEventType = "startup"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultIgnored = "ignored"
	ResultDenied  = "denied"
	ResultFailure = "failure"
)

// AuditEvent records a change to process-wide cryptographic configuration.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Scope     uint64         `json:"scope,omitempty"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// Recorders fans an event out to several recorders.
type Recorders []Recorder

// Record implements Recorder. Every recorder is tried; errors are joined.
func (rs Recorders) Record(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Component is the component name stamped on events.
	Component string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(StateDir(), "audit.log"),
		MaxSize:    10,
		MaxAge:     90,
		MaxBackups: 10,
		Component:  "cryptoservices",
	}
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	component string
	w         io.Writer
	closer    io.Closer
	mu        sync.Mutex
}

// NewAuditLogger creates an AuditLogger backed by a rotating file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	return &AuditLogger{component: cfg.Component, w: rotator, closer: rotator}, nil
}

// NewAuditWriter creates an AuditLogger writing to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{component: component, w: w}
}

// Record implements Recorder.
func (a *AuditLogger) Record(_ context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// PropertyEvent builds the audit record for a registry mutation.
func PropertyEvent(action, property string, scope uint64, values int) AuditEvent {
	typ := AuditEventPropertySet
	if action == "clear_global" || action == "clear_thread" {
		typ = AuditEventPropertyCleared
	}
	return AuditEvent{
		EventType: typ,
		Action:    action,
		Resource:  property,
		Scope:     scope,
		Result:    ResultSuccess,
		Details:   map[string]any{"values": values},
	}
}

// ConstraintsEvent builds the audit record for a constraints change attempt.
func ConstraintsEvent(policy string, installed bool) AuditEvent {
	ev := AuditEvent{
		EventType: AuditEventConstraintsInstalled,
		Action:    "set_services_constraints",
		Resource:  policy,
		Result:    ResultSuccess,
	}
	if !installed {
		ev.EventType = AuditEventConstraintsIgnored
		ev.Result = ResultIgnored
	}
	return ev
}

// DeniedEvent builds the audit record for a rejected capability check.
func DeniedEvent(action string, err error) AuditEvent {
	return AuditEvent{
		EventType: AuditEventPermission,
		Action:    action,
		Result:    ResultDenied,
		Error:     err.Error(),
	}
}
