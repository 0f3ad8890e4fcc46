// Package fingerprint derives the stable key identifying a caller for
// admission control and telemetry. A fingerprint combines the client network
// address with an optional authenticated identity; it is recomputed per
// request and never persisted.
package fingerprint

import (
	"fmt"
	"strings"
)

// Anonymous is the secondary segment used when no identity is known.
const Anonymous = "anonymous"

// Build returns the caller fingerprint "<ip>:<identity>". The identity is
// the authenticated user ID or email when available, otherwise Anonymous.
// Both segments are sanitized so a crafted identity containing the
// delimiter cannot collide with another caller's bucket.
func Build(ip, identity string) string {
	if identity == "" {
		identity = Anonymous
	}
	return fmt.Sprintf("%s:%s", sanitizeSegment(ip), sanitizeSegment(identity))
}

// Scoped prefixes a fingerprint with a policy name so distinct policies use
// independent windows: exhausting one budget never affects another.
func Scoped(policy, fp string) string {
	return fmt.Sprintf("%s:%s", sanitizeSegment(policy), fp)
}

// sanitizeSegment escapes delimiter characters in fingerprint segments.
//
// Escape rules (order matters):
//  1. '_' becomes '__' (escape the escape character first)
//  2. ':' becomes '_c' (escape the delimiter)
//
// No two distinct inputs produce the same sanitized output, which prevents
// bucket collision attacks via crafted identifiers.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
