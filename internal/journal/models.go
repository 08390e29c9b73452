package journal

import "time"

// Status represents the lifecycle of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RunSpec describes the inputs of a new run.
type RunSpec struct {
	ID           string
	OutputPrefix string
	Captures     []string
	Format       string
	Strategy     string
}

// Totals are the counts recorded when a run finishes.
type Totals struct {
	Frames             int64  `json:"frames"`
	FirstFrame         *int64 `json:"first_frame,omitempty"`
	LastFrame          *int64 `json:"last_frame,omitempty"`
	MissingFrames      int64  `json:"missing_frames"`
	MalformedFrames    int64  `json:"malformed_frames"`
	MergedBlocks       int64  `json:"merged_blocks"`
	ConcealedRedundant int64  `json:"concealed_redundant"`
	ConcealedTemporal  int64  `json:"concealed_temporal"`
	Irrecoverable      int64  `json:"irrecoverable_blocks"`
	AudioSamples       int64  `json:"audio_samples"`
	AudioSurplus       int64  `json:"audio_surplus"`
	AudioDeficit       int64  `json:"audio_deficit"`
	AudioConcealed     int64  `json:"audio_concealed"`
	ScheduleMismatches int64  `json:"schedule_mismatches"`
}

// Run is one journal row.
type Run struct {
	ID           string     `json:"id"`
	OutputPrefix string     `json:"output_prefix"`
	Captures     []string   `json:"captures"`
	Format       string     `json:"format"`
	Strategy     string     `json:"strategy"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Totals       Totals     `json:"totals"`
}

// Duration returns the wall time of a finished run, or zero.
func (r *Run) Duration() time.Duration {
	if r == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IrrecoverableRecord is a stored irrecoverable block.
type IrrecoverableRecord struct {
	Frame    int64  `json:"frame"`
	Block    int    `json:"block"`
	Kind     string `json:"kind"`
	Channel  int    `json:"channel"`
	Sequence int    `json:"sequence"`
	Slot     int    `json:"slot"`
	Offset   int    `json:"byte_offset"`
	Length   int    `json:"byte_length"`
}
