package domain

import "time"

// IndexEntry is one durable record of a completed run, keyed by the
// content fingerprint of the produced artifact. At most one entry per
// hash is ever persisted; entries are never mutated or deleted.
type IndexEntry struct {
	ContentHash  string         `json:"content_hash"`
	CreatedAt    time.Time      `json:"created_at"`
	SourceParams map[string]any `json:"source_params,omitempty"`
	ArtifactPath string         `json:"artifact_path"`
	Upload       *UploadResult  `json:"upload,omitempty"`
}

// UploadResult records the outcome of handing an artifact to an upload
// provider. Providers themselves live outside this module.
type UploadResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	DraftURL string `json:"draft_url,omitempty"`
}
