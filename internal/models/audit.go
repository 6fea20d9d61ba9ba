package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types for identity operations.
const (
	AuditEventLogin         = "login"
	AuditEventLoginFailed   = "login_failed"
	AuditEventLogout        = "logout"
	AuditEventTokenRefresh  = "token_refresh"
	AuditEventLockout       = "account_lockout"
	AuditEventMFAEnroll     = "mfa_enroll"
	AuditEventMFADisable    = "mfa_disable"
	AuditEventMFAVerify     = "mfa_verify"
	AuditEventMFAFailed     = "mfa_failed"
	AuditEventRoleChange    = "role_change"
	AuditEventManualIPBlock = "manual_ip_block"
)

// AuditLog is one immutable identity-security event.
type AuditLog struct {
	ID            uuid.UUID
	EventType     string
	ActorID       *string
	Success       bool
	FailureReason *string
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}
