package backendapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

const (
	etlPrefix   = "/api/v1/etl"
	filesPrefix = "/api/v1/files"
)

// ETLClient implements ports.ETLGateway over HTTP. File deletion lives
// outside the etl routes on the backend, hence the second caller.
type ETLClient struct {
	c     *caller
	files *caller
}

var _ ports.ETLGateway = (*ETLClient)(nil)

func NewETLClient(cfg Config) *ETLClient {
	return &ETLClient{c: newCaller(cfg, etlPrefix), files: newCaller(cfg, filesPrefix)}
}

func (e *ETLClient) UploadFile(ctx context.Context, file ports.FileUpload, country string) (*domain.UploadedFile, error) {
	body, contentType := multipartBody(file, map[string]string{"country": country})
	var out domain.UploadedFile
	err := e.c.do(ctx, request{
		op:          "upload file",
		method:      http.MethodPost,
		path:        "/upload-file",
		body:        body,
		contentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ETLClient) AnalyzeFile(ctx context.Context, fileID string) (*domain.FileAnalysis, error) {
	var out domain.FileAnalysis
	err := e.c.do(ctx, request{
		op:     "analyze file",
		method: http.MethodGet,
		path:   fmt.Sprintf("/files/%s/analyze", url.PathEscape(fileID)),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.FileID == "" {
		out.FileID = fileID
	}
	return &out, nil
}

func (e *ETLClient) ValidateSheets(ctx context.Context, fileID string, sheetNames []string) (map[string]domain.ValidationResult, error) {
	body, err := jsonBody(map[string]any{"sheet_names": sheetNames})
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ValidationResult)
	err = e.c.do(ctx, request{
		op:          "validate sheets",
		method:      http.MethodPost,
		path:        fmt.Sprintf("/files/%s/validate", url.PathEscape(fileID)),
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ETLClient) ConfirmUpload(ctx context.Context, fileID, targetDate string) (*domain.UploadedFile, error) {
	body, err := jsonBody(map[string]any{"target_date": targetDate})
	if err != nil {
		return nil, err
	}
	var out domain.UploadedFile
	err = e.c.do(ctx, request{
		op:          "confirm upload",
		method:      http.MethodPost,
		path:        fmt.Sprintf("/files/%s/confirm", url.PathEscape(fileID)),
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ETLClient) ProcessSheet(ctx context.Context, fileID, sheetName, targetDate string) (*domain.ETLJob, error) {
	body, err := jsonBody(map[string]any{"target_date": targetDate})
	if err != nil {
		return nil, err
	}
	var out domain.ETLJob
	err = e.c.do(ctx, request{
		op:          "process sheet",
		method:      http.MethodPost,
		path:        fmt.Sprintf("/files/%s/sheets/%s/process", url.PathEscape(fileID), url.PathEscape(sheetName)),
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ETLClient) ListFiles(ctx context.Context) ([]domain.UploadedFile, error) {
	out := make([]domain.UploadedFile, 0)
	if err := e.c.do(ctx, request{op: "list files", method: http.MethodGet, path: "/files"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ETLClient) GetFile(ctx context.Context, fileID string) (*domain.UploadedFile, error) {
	var out domain.UploadedFile
	err := e.c.do(ctx, request{
		op:     "get file",
		method: http.MethodGet,
		path:   "/files/" + url.PathEscape(fileID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile hard-deletes an uploaded file with its sheets and stored data.
func (e *ETLClient) DeleteFile(ctx context.Context, fileID string) (*domain.FileDeletion, error) {
	var out struct {
		Data domain.FileDeletion `json:"data"`
	}
	err := e.files.do(ctx, request{
		op:     "delete file",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/%s/hard-delete", url.PathEscape(fileID)),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data.FileID == "" {
		out.Data.FileID = fileID
	}
	return &out.Data, nil
}

func (e *ETLClient) GetJob(ctx context.Context, jobID string) (*domain.ETLJob, error) {
	var out domain.ETLJob
	err := e.c.do(ctx, request{
		op:     "get job",
		method: http.MethodGet,
		path:   "/jobs/" + url.PathEscape(jobID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ETLClient) ListJobs(ctx context.Context) ([]domain.ETLJob, error) {
	out := make([]domain.ETLJob, 0)
	if err := e.c.do(ctx, request{op: "list jobs", method: http.MethodGet, path: "/jobs"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ETLClient) CancelJob(ctx context.Context, jobID string) error {
	return e.c.do(ctx, request{
		op:     "cancel job",
		method: http.MethodPost,
		path:   fmt.Sprintf("/jobs/%s/cancel", url.PathEscape(jobID)),
	}, nil)
}

// ValidateFile is the legacy one-shot validation: file and optional sheet,
// no prior upload.
func (e *ETLClient) ValidateFile(ctx context.Context, file ports.FileUpload, sheetName string) (*domain.ValidationResult, error) {
	fields := map[string]string{}
	if sheetName != "" {
		fields["sheet_name"] = sheetName
	}
	body, contentType := multipartBody(file, fields)
	var out domain.ValidationResult
	err := e.c.do(ctx, request{
		op:          "validate file",
		method:      http.MethodPost,
		path:        "/validate",
		body:        body,
		contentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ETLClient) Health(ctx context.Context) (*domain.ServiceHealth, error) {
	var out domain.ServiceHealth
	if err := e.c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// multipartBody streams the file through a pipe so large spreadsheets are not
// buffered in memory.
func multipartBody(file ports.FileUpload, fields map[string]string) (io.Reader, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(writer, file, fields)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	return pr, writer.FormDataContentType()
}

func writeMultipart(writer *multipart.Writer, file ports.FileUpload, fields map[string]string) error {
	for key, val := range fields {
		if err := writer.WriteField(key, val); err != nil {
			return err
		}
	}

	part, err := writer.CreateFormFile("file", file.Filename)
	if err != nil {
		return err
	}
	if file.Reader == nil {
		return nil
	}
	_, err = io.Copy(part, file.Reader)
	return err
}
