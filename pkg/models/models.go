package models

import "time"

// FileStatus is the lifecycle state of a corpus file.
type FileStatus string

const (
	// StatusAdded marks a path the repository has never processed.
	StatusAdded FileStatus = "added"
	// StatusUpdated marks a path whose on-disk hash no longer matches the stored one.
	StatusUpdated FileStatus = "updated"
	// StatusProcessing marks a claimed, in-flight file.
	StatusProcessing FileStatus = "processing"
	// StatusOK marks a file reconciliation confirmed unchanged.
	StatusOK FileStatus = "ok"
	// StatusProcessed marks a freshly chunked and embedded file.
	StatusProcessed FileStatus = "processed"
	// StatusError marks a terminal failure; LastError holds the reason.
	StatusError FileStatus = "error"
)

// Eligible reports whether a file in this status may be claimed for processing.
// Errored files are deliberately excluded: they re-enter the queue only when
// their content changes or an operator resets them.
func (s FileStatus) Eligible() bool {
	return s == StatusAdded || s == StatusUpdated
}

// Terminal reports whether this status ends a processing attempt.
func (s FileStatus) Terminal() bool {
	return s == StatusOK || s == StatusProcessed || s == StatusError
}

// FileRecord is the persistent state of one corpus path.
type FileRecord struct {
	Path      string     `json:"path"`
	Hash      string     `json:"hash"`
	Status    FileStatus `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FileSnapshot is the per-attempt bundle handed to the pipeline. It is owned
// by exactly one run: RawText is filled in by the parse stage and the whole
// value is discarded when the run ends.
type FileSnapshot struct {
	Hash     string
	Path     string
	FullPath string
	RawText  string
}

// FileListing is one entry of the on-disk corpus listing fed to
// filesystem reconciliation.
type FileListing struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// Chunk is the unit of retrieval: a text span, its merged metadata, and its
// embedding vector. Chunks belong to the file version identified by
// Metadata["file_hash"].
type Chunk struct {
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// QueueStats is a point-in-time count of files per status.
type QueueStats struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Processing int `json:"processing"`
	OK         int `json:"ok"`
	Processed  int `json:"processed"`
	Errored    int `json:"error"`
}

// Total returns the number of tracked files.
func (q QueueStats) Total() int {
	return q.Added + q.Updated + q.Processing + q.OK + q.Processed + q.Errored
}

// Pending returns the number of files still awaiting processing.
func (q QueueStats) Pending() int {
	return q.Added + q.Updated
}

// SearchResult is one chunk returned from a similarity query.
type SearchResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}
