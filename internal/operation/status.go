package operation

import (
	"time"

	"github.com/openmined/s3ops/internal/gateway"
)

// Kind is the type of work an operation performs.
type Kind string

const (
	KindList        Kind = "list"
	KindUpload      Kind = "upload"
	KindDownload    Kind = "download"
	KindDelete      Kind = "delete"
	KindEmptyBucket Kind = "empty_bucket"
)

// State is the lifecycle state of an operation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrorEntry is one recorded failure. Item is the key or local path the error belongs to;
// it is the bucket name for operation level failures.
type ErrorEntry struct {
	Item    string            `json:"item"`
	Kind    gateway.ErrorKind `json:"kind"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// NewErrorEntry classifies err for item.
func NewErrorEntry(item string, err error) ErrorEntry {
	return ErrorEntry{
		Item:    item,
		Kind:    gateway.KindOf(err),
		Message: gateway.Message(err),
		At:      time.Now(),
	}
}

// ListResult is the payload of a completed list operation.
type ListResult struct {
	Bucket    string                `json:"bucket"`
	Prefix    string                `json:"prefix"`
	Objects   []gateway.ObjectEntry `json:"objects"`
	Prefixes  []string              `json:"prefixes"`
	NextToken string                `json:"nextToken,omitempty"`
}

// TransferResult lists the uploaded keys or downloaded local paths.
type TransferResult struct {
	Items []string `json:"items"`
}

// DeleteResult lists the keys that were deleted.
type DeleteResult struct {
	Deleted []string `json:"deleted"`
}
