// Package models defines the immutable security event record, its closed
// type and severity enumerations, and the constructors that fix the shape
// of each common event kind so call sites cannot mismatch them.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// EventType is the closed enumeration of security-relevant occurrences.
type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventAuthSuccess        EventType = "auth_success"
	EventAuthzFailure       EventType = "authz_failure"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventMaliciousInput     EventType = "malicious_input"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventAccountLockout     EventType = "account_lockout"
	EventBruteForce         EventType = "brute_force_attempt"
	EventIPBlocked          EventType = "ip_blocked"
	EventCORSViolation      EventType = "cors_violation"
	EventUploadViolation    EventType = "upload_violation"

	// Lifecycle notices get their own kinds instead of overloading
	// suspicious_activity.
	EventServerStart    EventType = "server_start"
	EventServerShutdown EventType = "server_shutdown"
)

// AllEventTypes lists every type in declaration order, used to zero-init
// metric partitions so absent types are explicit.
func AllEventTypes() []EventType {
	return []EventType{
		EventAuthFailure, EventAuthSuccess, EventAuthzFailure,
		EventRateLimitExceeded, EventMaliciousInput, EventSuspiciousActivity,
		EventAccountLockout, EventBruteForce, EventIPBlocked,
		EventCORSViolation, EventUploadViolation,
		EventServerStart, EventServerShutdown,
	}
}

// Severity classifies events for alerting and reporting. Severities are
// totally ordered via Rank.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists every severity in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Rank returns the ordering position of a severity; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SecurityEvent is an immutable record of a security-relevant occurrence.
// Field names follow the wire format served by the operator endpoints.
type SecurityEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"requestId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Email      string         `json:"email,omitempty"`
	IP         string         `json:"ip"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Path       string         `json:"path"`
	Method     string         `json:"method"`
	StatusCode int            `json:"statusCode,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	RiskScore  int            `json:"riskScore,omitempty"`
}

// RequestInfo carries the caller context shared by every event constructor.
type RequestInfo struct {
	RequestID  string
	UserID     string
	Email      string
	IP         string
	UserAgent  string
	Path       string
	Method     string
	StatusCode int
}

// bruteForceCriticalAttempts is the attempt count past which a brute force
// event escalates from HIGH to CRITICAL.
const bruteForceCriticalAttempts = 10

func newEvent(t EventType, sev Severity, msg string, info RequestInfo, details map[string]any) SecurityEvent {
	if details == nil {
		details = map[string]any{}
	}
	decorateUserAgent(details, info.UserAgent)
	return SecurityEvent{
		ID:         uuid.NewString(),
		Type:       t,
		Severity:   sev,
		Message:    msg,
		Timestamp:  time.Now().UTC(),
		RequestID:  info.RequestID,
		UserID:     info.UserID,
		Email:      info.Email,
		IP:         info.IP,
		UserAgent:  info.UserAgent,
		Path:       info.Path,
		Method:     info.Method,
		StatusCode: info.StatusCode,
		Details:    details,
	}
}

// decorateUserAgent enriches event details with the parsed client software.
// Bots are flagged explicitly so reporting can separate crawler noise from
// interactive traffic.
func decorateUserAgent(details map[string]any, ua string) {
	if ua == "" {
		return
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if name != "" {
		details["client"] = name + " " + version
	}
	if os := parsed.OS(); os != "" {
		details["os"] = os
	}
	if parsed.Bot() {
		details["bot"] = true
	}
}

func NewAuthFailure(info RequestInfo, reason string) SecurityEvent {
	return newEvent(EventAuthFailure, SeverityMedium, "authentication failed", info,
		map[string]any{"reason": reason})
}

func NewAuthSuccess(info RequestInfo) SecurityEvent {
	return newEvent(EventAuthSuccess, SeverityLow, "authentication succeeded", info, nil)
}

func NewRateLimitExceeded(info RequestInfo, policy string, limit int) SecurityEvent {
	return newEvent(EventRateLimitExceeded, SeverityMedium, "rate limit exceeded", info,
		map[string]any{"policy": policy, "limit": limit})
}

func NewMaliciousInput(info RequestInfo, field, category, pattern, value string) SecurityEvent {
	return newEvent(EventMaliciousInput, SeverityHigh, "malicious input detected", info,
		map[string]any{
			"field":    field,
			"category": category,
			"pattern":  pattern,
			"value":    value, // kept for forensic review; never echoed to clients
		})
}

func NewSuspiciousActivity(info RequestInfo, reason string) SecurityEvent {
	return newEvent(EventSuspiciousActivity, SeverityMedium, "suspicious activity", info,
		map[string]any{"reason": reason})
}

func NewIPBlocked(info RequestInfo, reason string) SecurityEvent {
	return newEvent(EventIPBlocked, SeverityHigh, "ip blocked", info,
		map[string]any{"reason": reason})
}

func NewCORSViolation(info RequestInfo, origin string) SecurityEvent {
	return newEvent(EventCORSViolation, SeverityMedium, "cors violation", info,
		map[string]any{"origin": origin})
}

// NewBruteForce escalates to CRITICAL once the attempt count passes 10.
// Risk score grows with attempts, capped at 100.
func NewBruteForce(info RequestInfo, attempts int) SecurityEvent {
	sev := SeverityHigh
	if attempts > bruteForceCriticalAttempts {
		sev = SeverityCritical
	}
	ev := newEvent(EventBruteForce, sev, "possible brute force attack", info,
		map[string]any{"attempts": attempts})
	ev.RiskScore = min(attempts*10, 100)
	return ev
}

func NewUploadViolation(info RequestInfo, reason string) SecurityEvent {
	return newEvent(EventUploadViolation, SeverityMedium, "upload policy violation", info,
		map[string]any{"reason": reason})
}

func NewServerStart() SecurityEvent {
	return newEvent(EventServerStart, SeverityLow, "gateway started", RequestInfo{IP: "localhost"}, nil)
}

func NewServerShutdown() SecurityEvent {
	return newEvent(EventServerShutdown, SeverityLow, "gateway shutting down", RequestInfo{IP: "localhost"}, nil)
}
