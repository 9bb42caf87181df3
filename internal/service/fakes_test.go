package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

// fakeScheduler only fires timers when the test advances it.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) util.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, at: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, running due callbacks in order. Callbacks
// scheduled while advancing run too if they fall inside the window.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var next *fakeTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.at
		next.fired = true
		s.mu.Unlock()
		next.fn()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type jobReply struct {
	job *domain.ETLJob
	err error
}

// fakeGateway scripts the ETL backend and records every call.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	uploadResult  *domain.UploadedFile
	uploadErr     error
	uploadCountry string
	uploadName    string
	uploadBytes   int

	analyzeResult *domain.FileAnalysis
	analyzeErr    error

	validateResult map[string]domain.ValidationResult
	validateErr    error
	validateSheets []string

	confirmResult *domain.UploadedFile
	confirmErr    error
	confirmDate   string

	processResult *domain.ETLJob
	processErr    error
	processDate   string

	files       []domain.UploadedFile
	listErr     error
	file        *domain.UploadedFile
	getFileErr  error
	jobs        []domain.ETLJob
	listJobsErr error
	cancelErr   error
	deleteErr   error

	// jobReplies are served in order per job id; the last one repeats.
	jobReplies map[string][]jobReply
}

var _ ports.ETLGateway = (*fakeGateway)(nil)

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) replyJob(jobID string, replies ...jobReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.jobReplies == nil {
		g.jobReplies = make(map[string][]jobReply)
	}
	g.jobReplies[jobID] = replies
}

func (g *fakeGateway) UploadFile(ctx context.Context, file ports.FileUpload, country string) (*domain.UploadedFile, error) {
	g.record("upload")
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadCountry = country
	g.uploadName = file.Filename
	g.uploadBytes = len(data)
	if g.uploadErr != nil {
		return nil, g.uploadErr
	}
	out := g.uploadResult.Clone()
	return &out, nil
}

func (g *fakeGateway) AnalyzeFile(ctx context.Context, fileID string) (*domain.FileAnalysis, error) {
	g.record("analyze")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.analyzeErr != nil {
		return nil, g.analyzeErr
	}
	out := *g.analyzeResult
	out.Sheets = append([]domain.SheetInfo(nil), g.analyzeResult.Sheets...)
	return &out, nil
}

func (g *fakeGateway) ValidateSheets(ctx context.Context, fileID string, sheetNames []string) (map[string]domain.ValidationResult, error) {
	g.record("validate")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validateSheets = append([]string(nil), sheetNames...)
	if g.validateErr != nil {
		return nil, g.validateErr
	}
	return g.validateResult, nil
}

func (g *fakeGateway) ConfirmUpload(ctx context.Context, fileID, targetDate string) (*domain.UploadedFile, error) {
	g.record("confirm")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmDate = targetDate
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	if g.confirmResult == nil {
		return nil, nil
	}
	out := g.confirmResult.Clone()
	return &out, nil
}

func (g *fakeGateway) ProcessSheet(ctx context.Context, fileID, sheetName, targetDate string) (*domain.ETLJob, error) {
	g.record("process")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processDate = targetDate
	if g.processErr != nil {
		return nil, g.processErr
	}
	out := *g.processResult
	return &out, nil
}

func (g *fakeGateway) ListFiles(ctx context.Context) ([]domain.UploadedFile, error) {
	g.record("list-files")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]domain.UploadedFile, len(g.files))
	for i, f := range g.files {
		out[i] = f.Clone()
	}
	return out, nil
}

func (g *fakeGateway) GetFile(ctx context.Context, fileID string) (*domain.UploadedFile, error) {
	g.record("get-file")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getFileErr != nil {
		return nil, g.getFileErr
	}
	out := g.file.Clone()
	return &out, nil
}

func (g *fakeGateway) DeleteFile(ctx context.Context, fileID string) (*domain.FileDeletion, error) {
	g.record("delete-file:" + fileID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return nil, g.deleteErr
	}
	return &domain.FileDeletion{FileID: fileID, DeletedItems: []string{"database_record:" + fileID}}, nil
}

func (g *fakeGateway) ListJobs(ctx context.Context) ([]domain.ETLJob, error) {
	g.record("list-jobs")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listJobsErr != nil {
		return nil, g.listJobsErr
	}
	return append([]domain.ETLJob(nil), g.jobs...), nil
}

func (g *fakeGateway) GetJob(ctx context.Context, jobID string) (*domain.ETLJob, error) {
	g.record("get-job:" + jobID)
	g.mu.Lock()
	defer g.mu.Unlock()
	replies := g.jobReplies[jobID]
	if len(replies) == 0 {
		return nil, errors.New("no scripted reply for " + jobID)
	}
	reply := replies[0]
	if len(replies) > 1 {
		g.jobReplies[jobID] = replies[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	out := *reply.job
	return &out, nil
}

func (g *fakeGateway) CancelJob(ctx context.Context, jobID string) error {
	g.record("cancel:" + jobID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelErr
}

func (g *fakeGateway) ValidateFile(ctx context.Context, file ports.FileUpload, sheetName string) (*domain.ValidationResult, error) {
	g.record("validate-file")
	return &domain.ValidationResult{IsValid: true}, nil
}

func (g *fakeGateway) Health(ctx context.Context) (*domain.ServiceHealth, error) {
	g.record("health")
	return &domain.ServiceHealth{Status: "healthy", Service: "etl"}, nil
}

func newJob(id string, status domain.JobStatus) *domain.ETLJob {
	return &domain.ETLJob{JobID: id, Status: status}
}

func strPtr(s string) *string { return &s }

func hasPrefix(err error, prefix string) bool {
	return err != nil && strings.HasPrefix(err.Error(), prefix)
}
