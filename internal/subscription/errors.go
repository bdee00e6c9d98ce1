package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrPlanNotFound         = fmt.Errorf("plan %w", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", ErrNotFound)

	ErrDuplicateActiveSubscription = errors.New("user already has an active subscription")

	// ErrReconciliationRequired marks a partial failure that left processor
	// and local state apart. A reconciliation task has been recorded.
	ErrReconciliationRequired = errors.New("reconciliation required")

	ErrStorage = errors.New("storage failure")
)

// Errors a Store implementation must return so the manager can tell
// constraint outcomes from infrastructure failures.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violated")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
