// Package tasks defines the messages exchanged with Kafka.
package tasks

import "time"

// Consistency task kinds.
const (
	KindCheck         = "check"
	KindInspect       = "inspect"
	KindRepairRecords = "repair_records"
	KindRepairObjects = "repair_objects"
)

// ConsistencyTask asks a worker to run a check or a repair asynchronously.
type ConsistencyTask struct {
	TaskID            string   `json:"task_id"`
	Kind              string   `json:"kind"`
	IncludeValidFiles bool     `json:"include_valid_files,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	FileID            string   `json:"file_id,omitempty"`
	IDs               []string `json:"ids,omitempty"`
	Paths             []string `json:"paths,omitempty"`
	RequestedBy       string   `json:"requested_by,omitempty"`
}

// ConsistencyEvent is published after every finished check or repair.
type ConsistencyEvent struct {
	Kind            string    `json:"kind"`
	ReportID        string    `json:"report_id,omitempty"`
	CheckType       string    `json:"check_type,omitempty"`
	Status          string    `json:"status"`
	OrphanedRecords int       `json:"orphaned_records"`
	OrphanedFiles   int       `json:"orphaned_files"`
	Partial         bool      `json:"partial,omitempty"`
	FileID          string    `json:"file_id,omitempty"`
	Succeeded       int       `json:"succeeded,omitempty"`
	Failed          int       `json:"failed,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
