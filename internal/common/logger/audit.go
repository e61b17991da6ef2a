package logger

import (
	"time"

	"go.uber.org/zap"
)

// AuditEvent represents an audit log event
type AuditEvent struct {
	EventType  string                 `json:"event_type"`
	Actor      string                 `json:"actor"` // Who performed the action
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	Status     string                 `json:"status"` // success, failure, denied
	Reason     string                 `json:"reason,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(zap.String("log_type", "audit")),
	}
}

// Log logs an audit event
func (a *AuditLogger) Log(event *AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("actor", event.Actor),
		zap.String("action", event.Action),
		zap.String("resource", event.Resource),
		zap.String("resource_id", event.ResourceID),
		zap.String("status", event.Status),
		zap.Time("timestamp", event.Timestamp),
	}

	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip_address", event.IPAddress))
	}

	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	// Log at appropriate level based on status
	switch event.Status {
	case "failure", "error":
		a.logger.Error("Audit event", fields...)
	case "denied", "forbidden":
		a.logger.Warn("Audit event", fields...)
	default:
		a.logger.Info("Audit event", fields...)
	}
}

// LogTenantCreated logs a tenant registration
func (a *AuditLogger) LogTenantCreated(actor, tenantID, name string, metadata map[string]interface{}) {
	a.Log(&AuditEvent{
		EventType:  "tenant.created",
		Actor:      actor,
		Action:     "create",
		Resource:   "tenant",
		ResourceID: tenantID,
		Status:     "success",
		Metadata:   mergeMetadata(metadata, map[string]interface{}{"name": name}),
		Timestamp:  time.Now(),
	})
}

// LogTenantUpdated logs a tenant trust-settings change
func (a *AuditLogger) LogTenantUpdated(actor, tenantID string, changes map[string]interface{}) {
	a.Log(&AuditEvent{
		EventType:  "tenant.updated",
		Actor:      actor,
		Action:     "update",
		Resource:   "tenant",
		ResourceID: tenantID,
		Status:     "success",
		Metadata:   changes,
		Timestamp:  time.Now(),
	})
}

// LogTenantDeleted logs a tenant removal
func (a *AuditLogger) LogTenantDeleted(actor, tenantID string) {
	a.Log(&AuditEvent{
		EventType:  "tenant.deleted",
		Actor:      actor,
		Action:     "delete",
		Resource:   "tenant",
		ResourceID: tenantID,
		Status:     "success",
		Timestamp:  time.Now(),
	})
}

// LogLoginSuccess logs a completed SSO login
func (a *AuditLogger) LogLoginSuccess(nameID, tenantID, ipAddress, userAgent string) {
	a.Log(&AuditEvent{
		EventType:  "saml.login.success",
		Actor:      nameID,
		Action:     "login",
		Resource:   "tenant",
		ResourceID: tenantID,
		Status:     "success",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Timestamp:  time.Now(),
	})
}

// LogLoginFailure logs a rejected SAML response. The reason lives in the
// audit trail only; browsers get the uniform failure body.
func (a *AuditLogger) LogLoginFailure(tenantID, reason, ipAddress, userAgent string) {
	a.Log(&AuditEvent{
		EventType:  "saml.login.failure",
		Actor:      "unknown",
		Action:     "login",
		Resource:   "tenant",
		ResourceID: tenantID,
		Status:     "failure",
		Reason:     reason,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Timestamp:  time.Now(),
	})
}

// LogAccessDenied logs a rejected admin API request
func (a *AuditLogger) LogAccessDenied(actor, action, resource, resourceID, reason string) {
	a.Log(&AuditEvent{
		EventType:  "access.denied",
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Status:     "denied",
		Reason:     reason,
		Timestamp:  time.Now(),
	})
}

// Helper function to merge metadata maps
func mergeMetadata(maps ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, m := range maps {
		if m != nil {
			for k, v := range m {
				result[k] = v
			}
		}
	}
	return result
}
