package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrQueueFull    = errors.New("event queue full")
	ErrBreakerOpen  = errors.New("circuit breaker open")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorCategory buckets a failure by where it originated.
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryBusiness        ErrorCategory = "business"
	CategoryNetwork         ErrorCategory = "network"
	CategoryExternalService ErrorCategory = "external_service"
	CategorySystem          ErrorCategory = "system"
)

// ErrorSeverity grades a failure's urgency.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ClassifiedError attaches a category and severity to an underlying error so
// the orchestrator can map it to an ack or a retry. Stores classify their
// failures at the point they occur; anything unclassified is not retried.
type ClassifiedError struct {
	ID       string
	Category ErrorCategory
	Severity ErrorSeverity
	Op       string
	Err      error
}

// NewError wraps err with a category, severity, and a fresh id.
func NewError(cat ErrorCategory, sev ErrorSeverity, op string, err error) *ClassifiedError {
	return &ClassifiedError{
		ID:       uuid.New().String(),
		Category: cat,
		Severity: sev,
		Op:       op,
		Err:      err,
	}
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: [%s/%s] %v", e.Op, e.Category, e.Severity, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth redelivering: transient
// network or external-service trouble, unless critical.
func (e *ClassifiedError) Retryable() bool {
	if e.Severity == SeverityCritical {
		return false
	}
	return e.Category == CategoryNetwork || e.Category == CategoryExternalService
}

// Retryable reports whether err carries a retryable classification.
func Retryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}
