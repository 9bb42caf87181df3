package domain

type FileStatus string

const (
	FileStatusUploaded  FileStatus = "uploaded"
	FileStatusAnalyzing FileStatus = "analyzing"
	FileStatusReady     FileStatus = "ready"
	FileStatusConfirmed FileStatus = "confirmed"
	FileStatusError     FileStatus = "error"
)

type ValidationStatus string

const (
	ValidationStatusPending   ValidationStatus = "pending"
	ValidationStatusValidated ValidationStatus = "validated"
	ValidationStatusError     ValidationStatus = "error"
)

// SheetETLStatus is the local load state of one worksheet. It only changes
// through the job poller or an explicit process/cancel action.
type SheetETLStatus string

const (
	SheetETLStatusNotLoaded SheetETLStatus = "not_loaded"
	SheetETLStatusLoading   SheetETLStatus = "loading"
	SheetETLStatusLoaded    SheetETLStatus = "loaded"
	SheetETLStatusFailed    SheetETLStatus = "failed"
)

type UploadedFile struct {
	FileID           string      `json:"file_id"`
	Filename         string      `json:"filename"`
	OriginalFilename string      `json:"original_filename,omitempty"`
	Country          string      `json:"country"`
	FileSize         int64       `json:"file_size"`
	Status           FileStatus  `json:"status"`
	UploadDate       string      `json:"upload_date,omitempty"`
	Sheets           []SheetInfo `json:"sheets"`
}

type SheetInfo struct {
	Name             string            `json:"sheet_name"`
	RowCount         int               `json:"row_count"`
	ColumnCount      int               `json:"column_count"`
	Columns          []string          `json:"columns"`
	ValidationStatus ValidationStatus  `json:"validation_status,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	ETLStatus        SheetETLStatus    `json:"etl_status,omitempty"`
	ETLJobID         *string           `json:"etl_job_id,omitempty"`
	LoadedAt         *Timestamp        `json:"loaded_at,omitempty"`
}

// FileDeletion is the backend's report of a hard delete.
type FileDeletion struct {
	FileID       string   `json:"file_id"`
	Filename     string   `json:"filename"`
	DeletedItems []string `json:"deleted_items"`
	StorageFreed int64    `json:"storage_freed"`
	Message      string   `json:"message,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots without sharing
// the sheet slice with the owner.
func (f UploadedFile) Clone() UploadedFile {
	out := f
	if f.Sheets != nil {
		out.Sheets = make([]SheetInfo, len(f.Sheets))
		for i, sheet := range f.Sheets {
			out.Sheets[i] = sheet.Clone()
		}
	}
	return out
}

func (s SheetInfo) Clone() SheetInfo {
	out := s
	if s.Columns != nil {
		out.Columns = append([]string(nil), s.Columns...)
	}
	if s.ValidationResult != nil {
		vr := s.ValidationResult.Clone()
		out.ValidationResult = &vr
	}
	if s.ETLJobID != nil {
		id := *s.ETLJobID
		out.ETLJobID = &id
	}
	if s.LoadedAt != nil {
		at := *s.LoadedAt
		out.LoadedAt = &at
	}
	return out
}

// SheetIndex returns the position of the named sheet or -1.
func (f UploadedFile) SheetIndex(name string) int {
	for i, sheet := range f.Sheets {
		if sheet.Name == name {
			return i
		}
	}
	return -1
}

// FileAnalysis is the analyze response: the file's worksheets with their shape.
type FileAnalysis struct {
	FileID     string      `json:"file_id"`
	Filename   string      `json:"filename,omitempty"`
	Sheets     []SheetInfo `json:"sheets"`
	Status     FileStatus  `json:"status,omitempty"`
	AnalyzedAt *Timestamp  `json:"analysis_completed_at,omitempty"`
}

type ServiceHealth struct {
	Status  string         `json:"status"`
	Service string         `json:"service"`
	Details map[string]any `json:"details,omitempty"`
}
