package constants

// JobState is the lifecycle state of a job.
type JobState string

// Stable values (stored as-is in the archive).
const (
	JobQueued        JobState = "queued"
	JobPreprocessing JobState = "preprocessing"
	JobExtracting    JobState = "extracting"
	JobValidating    JobState = "validating"
	JobCompleted     JobState = "completed"
	JobFailed        JobState = "failed"
)

var jobStateOrder = map[JobState]int{
	JobQueued:        0,
	JobPreprocessing: 1,
	JobExtracting:    2,
	JobValidating:    3,
	JobCompleted:     4,
	JobFailed:        4,
}

// Terminal reports whether no further transition is allowed.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// Jobs only move forward; failed is reachable from any non-terminal state.
func (s JobState) CanTransition(next JobState) bool {
	if s.Terminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	cur, ok1 := jobStateOrder[s]
	nxt, ok2 := jobStateOrder[next]
	return ok1 && ok2 && nxt > cur
}

// Active reports whether the job currently holds an admission slot.
func (s JobState) Active() bool {
	return s == JobPreprocessing || s == JobExtracting || s == JobValidating
}

// Job failure reasons.
const (
	FailCancelled   = "cancelled"
	FailUnsupported = "unsupported-format"
	FailCorrupt     = "corrupt-document"
	FailTimeout     = "job-timeout"
	FailInternal    = "internal-error"
	FailShutdown    = "shutdown"
)
