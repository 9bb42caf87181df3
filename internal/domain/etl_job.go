package domain

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusValidating JobStatus = "validating"
	JobStatusLoading    JobStatus = "loading"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsActive reports whether the remote job is still running and worth polling.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusValidating, JobStatusLoading:
		return true
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false
	default:
		return false
	}
}

// SheetStatus maps a remote job status onto the worksheet's local ETL status.
// ok is false when the status carries no local meaning and the previous sheet
// status must be kept.
//
// pending is shown as loading, same as processing.
func (s JobStatus) SheetStatus() (status SheetETLStatus, ok bool) {
	switch s {
	case JobStatusCompleted:
		return SheetETLStatusLoaded, true
	case JobStatusFailed, JobStatusCancelled:
		return SheetETLStatusFailed, true
	case JobStatusProcessing, JobStatusPending:
		return SheetETLStatusLoading, true
	case JobStatusValidating, JobStatusLoading:
		return "", false
	default:
		return "", false
	}
}

type ETLJob struct {
	JobID            string            `json:"job_id"`
	FileID           string            `json:"file_id,omitempty"`
	SourceFile       string            `json:"source_file,omitempty"`
	SheetName        string            `json:"sheet_name,omitempty"`
	Status           JobStatus         `json:"status"`
	Progress         int               `json:"progress,omitempty"`
	TargetDate       string            `json:"target_date,omitempty"`
	CreatedAt        *Timestamp        `json:"created_at,omitempty"`
	StartedAt        *Timestamp        `json:"started_at,omitempty"`
	CompletedAt      *Timestamp        `json:"completed_at,omitempty"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	RowsProcessed    int               `json:"rows_processed"`
	RowsInserted     int               `json:"rows_inserted"`
	RowsUpdated      int               `json:"rows_updated"`
	RowsSkipped      int               `json:"rows_skipped"`
}
