package booking

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNoAvailability           = errors.New("no slots available for the requested date and schedule")
	ErrSelectionRequired        = errors.New("multiple slots available, an explicit choice is required")
	ErrSlotUnavailable          = errors.New("the chosen slot is no longer available")
	ErrPreferredTimeUnavailable = errors.New("no slot available at the preferred time")
)

// SelectionError wraps a selection failure together with the candidate list
// the booker should choose from. Handlers attach the candidates to the 400
// response body.
type SelectionError struct {
	Err        error
	Candidates []SlotCandidate
}

func (e *SelectionError) Error() string { return e.Err.Error() }
func (e *SelectionError) Unwrap() error { return e.Err }

// SelectSlot narrows candidates to the requested date and schedule bucket,
// then applies the choice policy:
//
//  1. empty filtered set -> ErrNoAvailability
//  2. no preference given -> ErrSelectionRequired; a slot is never auto-picked
//     on the booker's behalf
//  3. preferredID given -> exact assignment id match, else ErrSlotUnavailable
//  4. preferredTime given -> exact HH:MM match, else ErrPreferredTimeUnavailable
//
// The function is pure: identical inputs always yield the identical result.
func SelectSlot(candidates []SlotCandidate, date string, bucket ScheduleBucket, preferredID *uuid.UUID, preferredTime *string) (SlotCandidate, error) {
	filtered := FilterCandidates(candidates, date, bucket)

	if len(filtered) == 0 {
		return SlotCandidate{}, &SelectionError{Err: ErrNoAvailability, Candidates: filtered}
	}

	if preferredID == nil && preferredTime == nil {
		return SlotCandidate{}, &SelectionError{Err: ErrSelectionRequired, Candidates: filtered}
	}

	if preferredID != nil {
		for _, c := range filtered {
			if c.AssignmentID == *preferredID {
				return c, nil
			}
		}
		return SlotCandidate{}, &SelectionError{Err: ErrSlotUnavailable, Candidates: filtered}
	}

	for _, c := range filtered {
		if c.SlotTime == *preferredTime {
			return c, nil
		}
	}
	return SlotCandidate{}, &SelectionError{Err: ErrPreferredTimeUnavailable, Candidates: filtered}
}

// FilterCandidates keeps candidates on the given date whose time falls in the
// schedule bucket, preserving the catalog's date/time ordering.
func FilterCandidates(candidates []SlotCandidate, date string, bucket ScheduleBucket) []SlotCandidate {
	var filtered []SlotCandidate
	for _, c := range candidates {
		if c.SlotDate.Format("2006-01-02") != date {
			continue
		}
		if c.Bucket() != bucket {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}
