package ingest

import (
	"strings"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/extract"
)

// Status is the lifecycle state of an ingestion job.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusComplete   Status = "Complete"
	failedPrefix            = "Failed: "
)

// StatusFailed builds the terminal failure status for reason.
func StatusFailed(reason string) Status { return Status(failedPrefix + reason) }

// Failed reports whether s is a failure status.
func (s Status) Failed() bool { return strings.HasPrefix(string(s), failedPrefix) }

// Done reports whether s is terminal.
func (s Status) Done() bool { return s == StatusComplete || s.Failed() }

// FileFailure records a file that was skipped during a job.
type FileFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Job is a snapshot of an ingestion job.
type Job struct {
	ID        string        `json:"job_id"`
	Status    Status        `json:"status"`
	Failures  []FileFailure `json:"failures"`
	Files     int           `json:"files"`
	Processed int           `json:"processed"`
	Chunks    int           `json:"chunks"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Request asks a worker to ingest paths under the given job id.
type Request struct {
	JobID string   `json:"job_id"`
	Paths []string `json:"paths"`
}

// chunkedFile is an extracted document split into passages.
type chunkedFile struct {
	extract.Document
	Chunks []string
}

// embeddedFile is a chunked document with one embedding per chunk.
type embeddedFile struct {
	chunkedFile
	Embeddings [][]float32
}
