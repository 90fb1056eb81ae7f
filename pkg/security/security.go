// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job ids
	MaxJobIDLength = 128

	// MaxPhaseLength is the maximum length for phase tags
	MaxPhaseLength = 64

	// MaxRetries is the hard limit for retry attempts
	MaxRetries = 100

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validJobID matches alphanumeric, hyphens, underscores, dots and colons
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.:]*$`)

var validPhase = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-]*$`)

var validAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateJobID validates a job identifier
func ValidateJobID(id string) error {
	if id == "" || len(id) > MaxJobIDLength {
		return core.ErrInvalidJobID
	}
	if !validJobID.MatchString(id) {
		return core.ErrInvalidJobID
	}
	return nil
}

// ValidatePhase validates a job phase tag
func ValidatePhase(phase string) error {
	if phase == "" || len(phase) > MaxPhaseLength {
		return core.ErrInvalidPhase
	}
	if !validPhase.MatchString(phase) {
		return core.ErrInvalidPhase
	}
	return nil
}

// ValidateAddress validates a 0x-prefixed 20 byte hex address
func ValidateAddress(addr string) error {
	if !validAddress.MatchString(addr) {
		return core.ErrInvalidAddress
	}
	return nil
}

// endpointURL matches RPC endpoints echoed in transport errors. Hosted
// providers put the API key in the path or query.
var endpointURL = regexp.MustCompile(`\b((?:https?|wss?)://)(?:[^/\s"'@]*@)?([^/\s"'?]+)[^\s"']*`)

// SanitizeErrorMessage prepares an error message for storage: endpoint
// credentials are redacted, control characters dropped and the result
// truncated to MaxErrorMessageLength runes.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = endpointURL.ReplaceAllString(msg, "${1}${2}/***")

	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}

	result := b.String()
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}
	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}
