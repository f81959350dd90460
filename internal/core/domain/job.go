package domain

import "time"

// JobSpec is the input for one pipeline run.
type JobSpec struct {
	// RunID correlates every log event emitted while this job runs.
	RunID          string
	Prompt         string
	NegativePrompt string
	Title          string
	Tags           []string
	Seed           int64
	// OutputDir is owned exclusively by this job while it runs.
	OutputDir string
}

// JobStatus is the final status of one batch job.
type JobStatus string

const (
	StatusSuccess          JobStatus = "success"
	StatusFailed           JobStatus = "failed"
	StatusSkippedDuplicate JobStatus = "skipped_duplicate"
)

// Artifact is the output of one pipeline run prior to publishing.
type Artifact struct {
	Path         string
	CoverPath    string
	SourceParams map[string]any
	Upload       *UploadResult
}

// JobResult is the outcome of one batch job. For StatusSkippedDuplicate
// the artifact path is still populated so a human can decide whether to
// discard the duplicate file.
type JobResult struct {
	Spec         JobSpec
	Status       JobStatus
	ArtifactPath string
	Entry        *IndexEntry
	// Category, Hint and RawError describe the terminal failure when
	// Status is StatusFailed.
	Category string
	Hint     string
	RawError string
	Attempts int
	Duration time.Duration
}

// BatchSummary is the aggregate outcome of one batch, exposed to the
// calling CLI alongside the ordered result list.
type BatchSummary struct {
	Total            int
	Success          int
	Failed           int
	SkippedDuplicate int
}
