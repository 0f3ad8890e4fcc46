package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))

	prev := 0
	for _, s := range AllSeverities() {
		assert.Greater(t, s.Rank(), prev, "severities must be strictly ordered")
		prev = s.Rank()
	}
}

func TestBruteForceEscalation(t *testing.T) {
	info := RequestInfo{IP: "203.0.113.9", Path: "/auth/login", Method: "POST"}

	t.Run("high below threshold", func(t *testing.T) {
		ev := NewBruteForce(info, 5)
		assert.Equal(t, SeverityHigh, ev.Severity)
		assert.Equal(t, 50, ev.RiskScore)
	})

	t.Run("ten attempts is still high", func(t *testing.T) {
		ev := NewBruteForce(info, 10)
		assert.Equal(t, SeverityHigh, ev.Severity)
		assert.Equal(t, 100, ev.RiskScore)
	})

	t.Run("critical past ten attempts", func(t *testing.T) {
		ev := NewBruteForce(info, 11)
		assert.Equal(t, SeverityCritical, ev.Severity)
		assert.Equal(t, 100, ev.RiskScore)
	})

	t.Run("risk score caps at 100", func(t *testing.T) {
		ev := NewBruteForce(info, 500)
		assert.Equal(t, 100, ev.RiskScore)
	})
}

func TestConstructorsFixShape(t *testing.T) {
	info := RequestInfo{
		RequestID: "req-1",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		Path:      "/api/postiz/posts",
		Method:    "POST",
	}

	ev := NewMaliciousInput(info, "body.q", "sql_injection", "sql_keywords", "' OR 1=1 --")
	assert.Equal(t, EventMaliciousInput, ev.Type)
	assert.Equal(t, SeverityHigh, ev.Severity)
	assert.Equal(t, "body.q", ev.Details["field"])
	assert.Equal(t, "' OR 1=1 --", ev.Details["value"])
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	rl := NewRateLimitExceeded(info, "auth", 10)
	assert.Equal(t, EventRateLimitExceeded, rl.Type)
	assert.Equal(t, SeverityMedium, rl.Severity)
	assert.Equal(t, "auth", rl.Details["policy"])

	assert.Equal(t, SeverityLow, NewAuthSuccess(info).Severity)
	assert.Equal(t, SeverityMedium, NewAuthFailure(info, "bad token").Severity)
	assert.Equal(t, SeverityHigh, NewIPBlocked(info, "manual block").Severity)
}

func TestUserAgentEnrichment(t *testing.T) {
	t.Run("browser details parsed", func(t *testing.T) {
		info := RequestInfo{
			IP:        "203.0.113.9",
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		}
		ev := NewSuspiciousActivity(info, "odd traffic")
		assert.Contains(t, ev.Details["client"], "Chrome")
	})

	t.Run("bots are flagged", func(t *testing.T) {
		info := RequestInfo{
			IP:        "203.0.113.9",
			UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		}
		ev := NewSuspiciousActivity(info, "odd traffic")
		assert.Equal(t, true, ev.Details["bot"])
	})

	t.Run("empty user agent adds nothing", func(t *testing.T) {
		ev := NewAuthSuccess(RequestInfo{IP: "203.0.113.9"})
		_, hasClient := ev.Details["client"]
		assert.False(t, hasClient)
	})
}

func TestLifecycleEventsHaveDistinctKinds(t *testing.T) {
	assert.Equal(t, EventServerStart, NewServerStart().Type)
	assert.Equal(t, EventServerShutdown, NewServerShutdown().Type)
	assert.NotEqual(t, EventSuspiciousActivity, NewServerStart().Type)
}
