package models

// Status is the lifecycle state of a work log.
type Status string

const (
	// StatusPending is set at submission.
	StatusPending Status = "pending"
	// StatusEdited marks an entry whose manager edit has been acknowledged by the worker.
	StatusEdited Status = "edited"
	// StatusWaitingWorker marks an entry edited by a manager and not yet acknowledged.
	StatusWaitingWorker Status = "waiting_worker"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusEdited,
	StatusWaitingWorker,
	StatusApproved,
	StatusRejected,
	StatusCompleted,
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts s into a Status, reporting whether it is known.
func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}
