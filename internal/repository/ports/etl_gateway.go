package ports

import (
	"context"
	"io"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
)

// FileUpload is a spreadsheet streamed to the ETL backend as multipart data.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ETLGateway is the external ETL backend. Implementations do no retries.
type ETLGateway interface {
	UploadFile(ctx context.Context, file FileUpload, country string) (*domain.UploadedFile, error)
	AnalyzeFile(ctx context.Context, fileID string) (*domain.FileAnalysis, error)
	ValidateSheets(ctx context.Context, fileID string, sheetNames []string) (map[string]domain.ValidationResult, error)
	ConfirmUpload(ctx context.Context, fileID, targetDate string) (*domain.UploadedFile, error)
	ProcessSheet(ctx context.Context, fileID, sheetName, targetDate string) (*domain.ETLJob, error)
	ListFiles(ctx context.Context) ([]domain.UploadedFile, error)
	GetFile(ctx context.Context, fileID string) (*domain.UploadedFile, error)
	DeleteFile(ctx context.Context, fileID string) (*domain.FileDeletion, error)
	GetJob(ctx context.Context, jobID string) (*domain.ETLJob, error)
	ListJobs(ctx context.Context) ([]domain.ETLJob, error)
	CancelJob(ctx context.Context, jobID string) error
	ValidateFile(ctx context.Context, file FileUpload, sheetName string) (*domain.ValidationResult, error)
	Health(ctx context.Context) (*domain.ServiceHealth, error)
}

// QueryEngine turns a natural-language question into SQL and its results.
type QueryEngine interface {
	Ask(ctx context.Context, question string) (*domain.ChatAnswer, error)
}
