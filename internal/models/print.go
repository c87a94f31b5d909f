package models

import "time"

// TaskStatus is the lifecycle state of a print task. Tasks are removed
// from the queue on completion or failure; both are terminal.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
)

// PrintTask is one queued unit of work: render and print one record's
// label. The record is a snapshot taken at enqueue time so later store
// mutations cannot change what gets printed.
type PrintTask struct {
	TaskID     string     `json:"taskId"`
	Record     Record     `json:"record"`
	BatchName  string     `json:"batchName"`
	Status     TaskStatus `json:"status"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}
