package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// Kind is the retry classification of a processing failure.
type Kind int

const (
	KindTerminal Kind = iota
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "terminal"
}

// transientMarkers is a compatibility shim for errors raised by opaque
// blockchain clients that carry no structured kind. Call sites we own should
// wrap with core.Transient or core.Terminal instead.
var transientMarkers = []string{
	"replacement transaction underpriced",
	"replacement_underpriced",
	"transaction underpriced",
	"nonce too low",
	"nonce has already been used",
	"nonce_expired",
	"max fee per gas less than block base fee",
	"insufficient funds for gas",
	"insufficient_funds",
	"timeout",
	"timed out",
}

// Classify decides whether err is worth another attempt.
func Classify(err error) Kind {
	if err == nil {
		return KindTerminal
	}

	var terminal *core.TerminalError
	if errors.As(err, &terminal) {
		return KindTerminal
	}
	var transient *core.TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}

	// A payment timeout is a business outcome, not a flaky call.
	if errors.Is(err, core.ErrPaymentTimeout) || errors.Is(err, context.Canceled) {
		return KindTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return KindTransient
		}
	}
	return KindTerminal
}

// IsRetryable reports whether err classifies as transient.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

// CalculateBackoff returns min(base * 2^retryCount, maxDelay).
func CalculateBackoff(base, maxDelay time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return maxDelay
	}
	backoff := base * (1 << retryCount)
	if backoff > maxDelay || backoff <= 0 {
		backoff = maxDelay
	}
	return backoff
}

// retryDelay picks the explicit delay of a RetryAfter error, or the backoff.
func retryDelay(err error, o *Options, retryCount int) time.Duration {
	var transient *core.TransientError
	if errors.As(err, &transient) && transient.Delay > 0 {
		return transient.Delay
	}
	return CalculateBackoff(o.BackoffBase, o.BackoffCap, retryCount)
}
