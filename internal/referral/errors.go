package referral

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrReferralNotFound  = errors.New("referral not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrEncounterNotFound = errors.New("encounter not found")

	// ErrStatusConflict is returned by repositories when a compare-and-swap
	// update matched no row: the referral moved under the caller's feet.
	ErrStatusConflict = errors.New("referral status changed concurrently")
)

// TransitionError carries the status the referral was actually in, so a
// caller that lost a race can refresh and decide whether to retry.
type TransitionError struct {
	Current   Status
	Attempted Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move referral from %s to %s", e.Current, e.Attempted)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbiddenErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
