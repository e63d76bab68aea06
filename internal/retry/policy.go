package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/remote"
)

const (
	defaultMaxAttemptsConstant       = 3
	defaultBaseDelayConstant         = time.Second
	defaultBackoffMultiplierConstant = 2.0
	maxBackoffDelayConstant          = 30 * time.Second
	retryScheduledMessageConstant    = "Retrying remote call"
	logFieldOperationConstant        = "operation"
	logFieldAttemptConstant          = "attempt"
	logFieldDelayConstant            = "delay"
)

// SleepFunc suspends the caller for the provided duration unless the context ends first.
type SleepFunc func(executionContext context.Context, delay time.Duration) error

// PolicyOptions configures a retry Policy.
type PolicyOptions struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	Logger            *zap.Logger
	Sleep             SleepFunc
}

// Policy reattempts retryable remote failures with exponential backoff.
type Policy struct {
	maxAttempts       int
	baseDelay         time.Duration
	backoffMultiplier float64
	logger            *zap.Logger
	sleep             SleepFunc
}

// NewPolicy constructs a Policy, applying defaults for unset options.
func NewPolicy(options PolicyOptions) *Policy {
	maxAttempts := options.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttemptsConstant
	}

	baseDelay := options.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelayConstant
	}

	backoffMultiplier := options.BackoffMultiplier
	if backoffMultiplier <= 0 {
		backoffMultiplier = defaultBackoffMultiplierConstant
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sleep := options.Sleep
	if sleep == nil {
		sleep = contextAwareSleep
	}

	return &Policy{
		maxAttempts:       maxAttempts,
		baseDelay:         baseDelay,
		backoffMultiplier: backoffMultiplier,
		logger:            logger,
		sleep:             sleep,
	}
}

// Execute runs the operation until it succeeds, fails fatally, or exhausts the attempt budget.
// The last observed error surfaces when the budget runs out.
func (policy *Policy) Execute(executionContext context.Context, operationName string, operation func(context.Context) error) error {
	var lastError error

	for attemptNumber := 1; attemptNumber <= policy.maxAttempts; attemptNumber++ {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}

		operationError := operation(executionContext)
		if operationError == nil {
			return nil
		}
		if !remote.IsRetryable(operationError) {
			return operationError
		}

		lastError = operationError
		if attemptNumber == policy.maxAttempts {
			break
		}

		retryDelay := policy.delayForAttempt(attemptNumber)
		if hintedDelay, hintAvailable := remote.RetryAfterHint(operationError); hintAvailable {
			retryDelay = hintedDelay
		}

		policy.logger.Debug(
			retryScheduledMessageConstant,
			zap.String(logFieldOperationConstant, operationName),
			zap.Int(logFieldAttemptConstant, attemptNumber),
			zap.Duration(logFieldDelayConstant, retryDelay),
		)

		if sleepError := policy.sleep(executionContext, retryDelay); sleepError != nil {
			return sleepError
		}
	}

	return lastError
}

func (policy *Policy) delayForAttempt(attemptNumber int) time.Duration {
	computedDelay := time.Duration(float64(policy.baseDelay) * math.Pow(policy.backoffMultiplier, float64(attemptNumber-1)))
	if computedDelay > maxBackoffDelayConstant {
		return maxBackoffDelayConstant
	}
	return computedDelay
}

func contextAwareSleep(executionContext context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	delayTimer := time.NewTimer(delay)
	defer delayTimer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-delayTimer.C:
		return nil
	}
}
