package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusProcessing JobStatus = "processing" // set by the front door, job in flight
	JobStatusCompleted  JobStatus = "completed"  // terminal success
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// IsTerminal reports whether s is a terminal status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AnalysisMode selects which extraction strategies are attempted for a job
// and whether fallback between them is allowed.
type AnalysisMode string

const (
	ModeVisionFirst AnalysisMode = "vision_first" // vision, fall back to text on failure
	ModeVisionOnly  AnalysisMode = "vision_only"  // vision, no fallback
	ModeManualOnly  AnalysisMode = "manual_only"  // text strategy only
)

// ParseAnalysisMode maps a stored string to an AnalysisMode,
// defaulting to ModeVisionFirst for empty or unknown values.
func ParseAnalysisMode(s string) AnalysisMode {
	switch AnalysisMode(s) {
	case ModeVisionOnly:
		return ModeVisionOnly
	case ModeManualOnly:
		return ModeManualOnly
	default:
		return ModeVisionFirst
	}
}
