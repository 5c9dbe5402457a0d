package service

import (
	"errors"
	"fmt"

	"moderation-service/internal/models"
)

var ( // Domain rule violations; all are recoverable and caller-visible.
	ErrDuplicateSubmission   = errors.New("content already has an active queue item")
	ErrInvalidTransition     = errors.New("invalid queue item transition")
	ErrAlreadyClaimed        = errors.New("queue item already claimed")
	ErrNotAssignedToReviewer = errors.New("queue item is not assigned to this reviewer")
	ErrInvalidDecision       = errors.New("invalid decision")
	ErrNotesRequired         = errors.New("notes are required for this item")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrCapacityExceeded      = errors.New("reviewer has no free capacity")
	ErrItemNotFound          = errors.New("queue item not found")
	ErrUnknownContentType    = errors.New("unknown content type")
	ErrInvalidPriority       = errors.New("invalid priority")
	ErrInvalidSLAHours       = errors.New("sla hours must be positive")
	ErrContentNotFound       = errors.New("content not found")
)

// TransitionError names the state an item was in and the transition that was
// refused. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	ItemID    string
	Current   models.QueueStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s queue item %s in status %s", e.Attempted, e.ItemID, e.Current)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StorageError hides driver details from callers; Unwrap keeps them for logs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage error during " + e.Op
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// isDomainErr reports whether err is one of the caller-visible rule violations
// and must pass through transaction helpers unwrapped.
func isDomainErr(err error) bool {
	for _, target := range []error{
		ErrDuplicateSubmission, ErrInvalidTransition, ErrAlreadyClaimed, ErrNotAssignedToReviewer,
		ErrInvalidDecision, ErrNotesRequired, ErrPermissionDenied, ErrCapacityExceeded,
		ErrItemNotFound, ErrUnknownContentType, ErrInvalidPriority, ErrInvalidSLAHours, ErrContentNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
