package conflict

import (
	"time"

	"github.com/torim-app/torim/internal/model"
)

// Overlap reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Back-to-back intervals (aEnd == bStart) do not.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Find returns the first appointment in candidates that overlaps
// [start,end), skipping excludeID (self-exclusion on update). Candidates
// are expected to be the consultant's scheduled appointments; cancelled
// ones never conflict and are filtered out before this call.
//
// Linear scan: a single consultant's active calendar stays small. A larger
// deployment would swap in a sorted interval structure with the same
// predicate.
func Find(candidates []model.Appointment, start, end time.Time, excludeID string) (model.Appointment, bool) {
	for _, a := range candidates {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if Overlap(a.Start, a.End, start, end) {
			return a, true
		}
	}
	return model.Appointment{}, false
}
