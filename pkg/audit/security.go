// Package audit provides security audit logging for SIEM consumption.
// Events are logged as structured JSON under the "security_audit" logger
// so they can be filtered and alerted on separately from request logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventFieldInjectionAttempt is logged when libinjection flags a
	// user-supplied export field name.
	EventFieldInjectionAttempt SecurityEventType = "field_injection_attempt"
	// EventOriginDenied is logged when a public export read is refused by
	// the origin allow-lists.
	EventOriginDenied SecurityEventType = "origin_denied"
	// EventCredentialDecryptFailure is logged when a stored credential can
	// not be decrypted with the configured key.
	EventCredentialDecryptFailure SecurityEventType = "credential_decrypt_failure"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ProjectID string            `json:"project_id"`
	ExportID  string            `json:"export_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// FieldInjectionDetails contains specifics of a rejected field name.
type FieldInjectionDetails struct {
	FieldName   string `json:"field_name"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// OriginDeniedDetails describes a refused public read.
type OriginDeniedDetails struct {
	Origin    string `json:"origin"`
	HasOrigin bool   `json:"has_origin"`
}

type clientIPKey struct{}

// WithClientIP stores the caller's address for events logged further down the stack.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogFieldInjectionAttempt records a field name that libinjection flagged.
// Logged at ERROR with critical severity.
func (a *SecurityAuditor) LogFieldInjectionAttempt(ctx context.Context, projectID, userID string, details FieldInjectionDetails) {
	event := a.event(ctx, EventFieldInjectionAttempt, SeverityCritical, projectID, "", userID, details)
	a.logger.Error("Field name injection attempt detected",
		zap.String("event_json", encode(event)),
		zap.String("project_id", projectID),
		zap.String("field_name", details.FieldName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", event.ClientIP),
		zap.String("user_id", userID),
		zap.String("severity", SeverityCritical),
	)
}

// LogOriginDenied records a public export read refused by origin policy.
// Public reads are anonymous, so there is no user id.
func (a *SecurityAuditor) LogOriginDenied(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) {
	event := a.event(ctx, EventOriginDenied, SeverityWarning, projectID, exportID, "",
		OriginDeniedDetails{Origin: origin, HasOrigin: hasOrigin})
	a.logger.Warn("Public export origin denied",
		zap.String("event_json", encode(event)),
		zap.String("project_id", projectID),
		zap.String("export_id", exportID),
		zap.String("origin", origin),
		zap.Bool("has_origin", hasOrigin),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", SeverityWarning),
	)
}

// LogCredentialDecryptFailure records a credential that failed to decrypt,
// which usually means the encryption key was rotated or the value tampered with.
func (a *SecurityAuditor) LogCredentialDecryptFailure(ctx context.Context, projectID, credentialID string) {
	event := a.event(ctx, EventCredentialDecryptFailure, SeverityCritical, projectID, "", "",
		map[string]string{"credential_id": credentialID})
	a.logger.Error("Credential decryption failed",
		zap.String("event_json", encode(event)),
		zap.String("project_id", projectID),
		zap.String("credential_id", credentialID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", SeverityCritical),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, typ SecurityEventType, severity, projectID, exportID, userID string, details any) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: typ,
		ProjectID: projectID,
		ExportID:  exportID,
		UserID:    userID,
		ClientIP:  ClientIPFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

// Marshaling these known types cannot fail.
func encode(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
