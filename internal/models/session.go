package models

import "time"

// JobStatus represents the status of a summary job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// SummaryJob tracks one asynchronous run of the report builder over a batch.
type SummaryJob struct {
	ID               string    `json:"id"`
	BatchID          string    `json:"batchId"`
	Status           JobStatus `json:"status"`
	NodeCount        int       `json:"nodeCount,omitempty"`
	WarningCount     int       `json:"warningCount,omitempty"`
	ReadingCount     int       `json:"readingCount,omitempty"`
	Persisted        bool      `json:"persisted"`
	CreatedAt        int64     `json:"createdAt"` // Unix ms
	ProcessingTimeMs int64     `json:"processingTimeMs,omitempty"`
	StartTime        int64     `json:"startTime,omitempty"` // Unix ms
	EndTime          int64     `json:"endTime,omitempty"`   // Unix ms
	Error            string    `json:"error,omitempty"`
}

// NewSummaryJob creates a SummaryJob in pending status.
func NewSummaryJob(id, batchID string) *SummaryJob {
	return &SummaryJob{
		ID:        id,
		BatchID:   batchID,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UnixMilli(),
	}
}
