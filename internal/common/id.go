package common

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var referenceSeq atomic.Int64

// NewSearchID generates a unique search job ID with the "search_" prefix
// Format: search_<uuid>
func NewSearchID() string {
	return "search_" + uuid.New().String()
}

// NewDocumentID generates a unique document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewTaskID generates a unique task ID with the "task_" prefix
// Format: task_<uuid>
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewReferenceNumber generates a human-readable search reference.
// Format: TS-<year>-<seq>. The sequence restarts per process; callers must
// handle the storage layer rejecting a reference that is already taken and
// allocate again. The sequence is strictly increasing, so reallocation
// passes any persisted references in bounded steps.
func NewReferenceNumber() string {
	return fmt.Sprintf("TS-%d-%05d", time.Now().Year(), referenceSeq.Add(1))
}
