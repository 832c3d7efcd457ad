package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

type ExecutionRecord struct {
	ID               int64      `json:"id" db:"id"`
	RunUUID          string     `json:"run_uuid" db:"run_uuid"`
	Source           string     `json:"source" db:"source"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	Processed        int        `json:"processed" db:"processed"`
	NewCount         int        `json:"new" db:"new_count"`
	UpdatedCount     int        `json:"updated" db:"updated_count"`
	UnchangedCount   int        `json:"unchanged" db:"unchanged_count"`
	ImagesDownloaded int        `json:"images_downloaded" db:"images_downloaded"`
	ImagesDeleted    int        `json:"images_deleted" db:"images_deleted"`
	ImageErrors      int        `json:"image_errors" db:"image_errors"`
	Errors           int        `json:"errors" db:"errors"`
	LogText          string     `json:"log_text" db:"log_text"`
	Details          string     `json:"details" db:"details"`
}

// Statistics is a snapshot of one batch's counters.
type Statistics struct {
	Processed        int        `json:"processed"`
	New              int        `json:"new"`
	Updated          int        `json:"updated"`
	Unchanged        int        `json:"unchanged"`
	ImagesDownloaded int        `json:"images_downloaded"`
	ImagesDeleted    int        `json:"images_deleted"`
	ImageErrors      int        `json:"image_errors"`
	Errors           int        `json:"errors"`
	MarkedInactive   int        `json:"marked_inactive"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
}

// Apply copies the counters onto an execution record.
func (s Statistics) Apply(rec *ExecutionRecord) {
	rec.Processed = s.Processed
	rec.NewCount = s.New
	rec.UpdatedCount = s.Updated
	rec.UnchangedCount = s.Unchanged
	rec.ImagesDownloaded = s.ImagesDownloaded
	rec.ImagesDeleted = s.ImagesDeleted
	rec.ImageErrors = s.ImageErrors
	rec.Errors = s.Errors
}
