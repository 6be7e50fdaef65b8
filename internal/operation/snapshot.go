package operation

import "time"

// Snapshot is an immutable copy of a Handle taken under its lock.
type Snapshot struct {
	ID               string       `json:"id"`
	Kind             Kind         `json:"kind"`
	Bucket           string       `json:"bucket"`
	Description      string       `json:"description"`
	State            State        `json:"state"`
	TotalUnits       int64        `json:"totalUnits"`
	TotalKnown       bool         `json:"totalKnown"`
	CompletedUnits   int64        `json:"completedUnits"`
	SkippedUnits     int64        `json:"skippedUnits"`
	TotalBytes       int64        `json:"totalBytes"`
	TransferredBytes int64        `json:"transferredBytes"`
	CurrentItem      string       `json:"currentItem,omitempty"`
	Errors           []ErrorEntry `json:"errors"`
	Fatal            *ErrorEntry  `json:"fatal,omitempty"`
	CancelRequested  bool         `json:"cancelRequested"`
	Result           any          `json:"result,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	StartedAt        time.Time    `json:"startedAt"`
	FinishedAt       time.Time    `json:"finishedAt"`
}

func (s Snapshot) IsTerminal() bool {
	return s.State.IsTerminal()
}

// Progress returns the completed fraction in [0, 1]. It is 0 while the total is unknown.
func (s Snapshot) Progress() float64 {
	if s.TotalUnits <= 0 {
		if s.TotalKnown && s.IsTerminal() {
			return 1
		}
		return 0
	}
	if !s.TotalKnown {
		return 0
	}
	return float64(s.CompletedUnits) / float64(s.TotalUnits)
}

// Duration is the running time so far, or the total running time once terminal.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// TransferResult returns the result of an upload or download, or nil.
func (s Snapshot) TransferResult() *TransferResult {
	r, _ := s.Result.(*TransferResult)
	return r
}

// ListResult returns the result of a list operation, or nil.
func (s Snapshot) ListResult() *ListResult {
	r, _ := s.Result.(*ListResult)
	return r
}

// DeleteResult returns the result of a delete or empty-bucket operation, or nil.
func (s Snapshot) DeleteResult() *DeleteResult {
	r, _ := s.Result.(*DeleteResult)
	return r
}
