package common

import (
	"time"
)

const (
	JobTypeEntry = "entry"
)

// EntryJob names one directory entry to equalize.
type EntryJob struct {
	RunID     string    `json:"run_id"`
	SourceDir string    `json:"source_dir"`
	DestDir   string    `json:"dest_dir"`
	Name      string    `json:"name"`
	QueuedAt  time.Time `json:"queued_at"`
}

type JobMessage struct {
	Type  string    `json:"type"`
	Entry *EntryJob `json:"entry,omitempty"`
}
