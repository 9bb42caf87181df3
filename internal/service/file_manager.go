package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

var (
	ErrManagerClosed      = errors.New("file manager is closed")
	ErrFileNotFound       = errors.New("file not found")
	ErrSheetNotFound      = errors.New("sheet not found")
	ErrSheetAlreadyLoaded = errors.New("sheet is already loaded")
	ErrJobNotFound        = errors.New("job not found")
)

const (
	defaultPollInitialDelay = time.Second
	defaultPollInterval     = 2 * time.Second
)

type managerGateway interface {
	ListFiles(ctx context.Context) ([]domain.UploadedFile, error)
	GetFile(ctx context.Context, fileID string) (*domain.UploadedFile, error)
	DeleteFile(ctx context.Context, fileID string) (*domain.FileDeletion, error)
	ListJobs(ctx context.Context) ([]domain.ETLJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.ETLJob, error)
	ProcessSheet(ctx context.Context, fileID, sheetName, targetDate string) (*domain.ETLJob, error)
	CancelJob(ctx context.Context, jobID string) error
}

type FileManagerConfig struct {
	OwnerID          string
	PollInitialDelay time.Duration
	PollInterval     time.Duration
	// PollErrorRetries is how many failed status fetches in a row a poll loop
	// tolerates, with exponential backoff, before it stops. Zero stops on the
	// first failure.
	PollErrorRetries int
}

// FileManager holds one user's uploaded files and the cache of their ETL jobs,
// and polls every started job until it reaches a terminal status.
type FileManager struct {
	gateway   managerGateway
	scheduler util.Scheduler
	cfg       FileManagerConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	files      []domain.UploadedFile
	jobs       map[string]domain.ETLJob
	monitoring map[string]*jobMonitor
	loading    bool
	errMsg     string
	closed     bool
}

// jobMonitor is the live poll loop for one job. A loop only acts while it is
// still the entry registered for its job id.
type jobMonitor struct {
	jobID string
	timer util.Timer
	retry backoff.BackOff
}

func NewFileManager(gateway managerGateway, scheduler util.Scheduler, cfg FileManagerConfig) *FileManager {
	if scheduler == nil {
		scheduler = util.NewScheduler()
	}
	if cfg.PollInitialDelay <= 0 {
		cfg.PollInitialDelay = defaultPollInitialDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FileManager{
		gateway:    gateway,
		scheduler:  scheduler,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]domain.ETLJob),
		monitoring: make(map[string]*jobMonitor),
	}
}

func (m *FileManager) OwnerID() string { return m.cfg.OwnerID }

// LoadFiles replaces the file list with the backend's. On failure the current
// list is kept and the error is recorded.
func (m *FileManager) LoadFiles(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.loading = true
	m.mu.Unlock()

	files, err := m.gateway.ListFiles(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		err = fmt.Errorf("load files failed: %w", err)
		m.errMsg = err.Error()
		return err
	}
	m.files = lo.Map(files, func(f domain.UploadedFile, _ int) domain.UploadedFile { return f.Clone() })
	return nil
}

// LoadJobs fills the job cache and resumes polling for active jobs whose
// sheet is known.
func (m *FileManager) LoadJobs(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()

	jobs, err := m.gateway.ListJobs(ctx)

	m.mu.Lock()
	if err != nil {
		err = fmt.Errorf("load jobs failed: %w", err)
		m.errMsg = err.Error()
		m.mu.Unlock()
		return err
	}
	var resume []string
	for _, job := range jobs {
		m.jobs[job.JobID] = job
		if !job.Status.IsActive() {
			continue
		}
		if fi, si := m.sheetToResumeLocked(job); fi >= 0 && si >= 0 {
			m.attachJobLocked(fi, si, job.JobID)
			resume = append(resume, job.JobID)
		}
	}
	m.mu.Unlock()

	for _, id := range resume {
		m.StartMonitoring(id)
	}
	return nil
}

// ProcessSheet starts the ETL load of one sheet. A sheet that is already
// loaded is refused without calling the backend. The sheet shows loading
// right away and falls back to failed when the backend rejects the request.
func (m *FileManager) ProcessSheet(ctx context.Context, fileID, sheetName, targetDate string) (*domain.ETLJob, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	fi, si, err := m.findSheetLocked(fileID, sheetName)
	if err != nil {
		m.errMsg = err.Error()
		m.mu.Unlock()
		return nil, err
	}
	if m.files[fi].Sheets[si].ETLStatus == domain.SheetETLStatusLoaded {
		err := fmt.Errorf("%w: %s", ErrSheetAlreadyLoaded, sheetName)
		m.errMsg = err.Error()
		m.mu.Unlock()
		return nil, err
	}
	date, err := normalizeTargetDate(targetDate, m.scheduler.Now())
	if err != nil {
		m.errMsg = err.Error()
		m.mu.Unlock()
		return nil, err
	}
	m.updateSheetLocked(fi, si, func(s *domain.SheetInfo) {
		s.ETLStatus = domain.SheetETLStatusLoading
	})
	m.errMsg = ""
	m.mu.Unlock()

	job, err := m.gateway.ProcessSheet(ctx, fileID, sheetName, date)

	m.mu.Lock()
	if err != nil {
		if fi, si, findErr := m.findSheetLocked(fileID, sheetName); findErr == nil {
			m.updateSheetLocked(fi, si, func(s *domain.SheetInfo) {
				s.ETLStatus = domain.SheetETLStatusFailed
			})
		}
		err = fmt.Errorf("process sheet failed: %w", err)
		m.errMsg = err.Error()
		m.mu.Unlock()
		return nil, err
	}
	if job.FileID == "" {
		job.FileID = fileID
	}
	if job.SheetName == "" {
		job.SheetName = sheetName
	}
	m.jobs[job.JobID] = *job
	if fi, si, findErr := m.findSheetLocked(fileID, sheetName); findErr == nil {
		m.attachJobLocked(fi, si, job.JobID)
	}
	m.mu.Unlock()

	log.Printf("etl job %s: started for %s/%s (target %s)", job.JobID, fileID, sheetName, date)
	m.StartMonitoring(job.JobID)
	out := *job
	return &out, nil
}

// CancelJob asks the backend to cancel and marks the cached job cancelled
// without waiting for the poll loop, which keeps running until it sees a
// terminal status itself.
func (m *FileManager) CancelJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()

	err := m.gateway.CancelJob(ctx, jobID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("cancel failed: %w", err)
		m.errMsg = err.Error()
		return err
	}
	if job, ok := m.jobs[jobID]; ok {
		job.Status = domain.JobStatusCancelled
		m.jobs[jobID] = job
	}
	return nil
}

// RefreshFile re-reads one file and replaces it in the list, or appends it
// when it was not known.
func (m *FileManager) RefreshFile(ctx context.Context, fileID string) (*domain.UploadedFile, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	file, err := m.gateway.GetFile(ctx, fileID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("refresh file failed: %w", err)
		m.errMsg = err.Error()
		return nil, err
	}
	m.putFileLocked(*file, false)
	out := file.Clone()
	return &out, nil
}

// DeleteFile hard-deletes a file on the backend, then drops it from the list
// and stops polling the jobs that load its sheets. Their last known state
// stays in the job cache.
func (m *FileManager) DeleteFile(ctx context.Context, fileID string) (*domain.FileDeletion, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	result, err := m.gateway.DeleteFile(ctx, fileID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("delete file failed: %w", err)
		m.errMsg = err.Error()
		return nil, err
	}
	if idx := m.fileIndexLocked(fileID); idx >= 0 {
		for _, sheet := range m.files[idx].Sheets {
			if sheet.ETLJobID != nil {
				m.stopMonitoringLocked(*sheet.ETLJobID)
			}
		}
		m.files = slices.Delete(m.files, idx, idx+1)
	}
	for id, job := range m.jobs {
		if job.FileID == fileID {
			m.stopMonitoringLocked(id)
		}
	}
	log.Printf("file %s: deleted (%d items)", fileID, len(result.DeletedItems))
	return result, nil
}

// AddFile takes over a file confirmed by an upload wizard.
func (m *FileManager) AddFile(file domain.UploadedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.putFileLocked(file, true)
}

func (m *FileManager) putFileLocked(file domain.UploadedFile, prepend bool) {
	clone := file.Clone()
	if idx := m.fileIndexLocked(file.FileID); idx >= 0 {
		m.files[idx] = clone
		return
	}
	if prepend {
		m.files = append([]domain.UploadedFile{clone}, m.files...)
		return
	}
	m.files = append(m.files, clone)
}

// StartMonitoring starts the poll loop for jobID. It reports false when the
// job is already being polled, so a job never has two loops.
func (m *FileManager) StartMonitoring(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, ok := m.monitoring[jobID]; ok {
		return false
	}
	mon := &jobMonitor{jobID: jobID}
	if m.cfg.PollErrorRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = m.cfg.PollInterval
		exp.MaxInterval = 30 * m.cfg.PollInterval
		exp.MaxElapsedTime = 0
		mon.retry = backoff.WithMaxRetries(exp, uint64(m.cfg.PollErrorRetries))
		mon.retry.Reset()
	}
	m.monitoring[jobID] = mon
	mon.timer = m.scheduler.AfterFunc(m.cfg.PollInitialDelay, func() { m.poll(mon) })
	return true
}

func (m *FileManager) stopMonitoringLocked(jobID string) {
	mon, ok := m.monitoring[jobID]
	if !ok {
		return
	}
	if mon.timer != nil {
		mon.timer.Stop()
	}
	delete(m.monitoring, jobID)
}

func (m *FileManager) IsMonitoring(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitoring[jobID]
	return ok
}

func (m *FileManager) poll(mon *jobMonitor) {
	m.mu.Lock()
	if m.closed || m.monitoring[mon.jobID] != mon {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	job, err := m.gateway.GetJob(m.ctx, mon.jobID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.monitoring[mon.jobID] != mon {
		return
	}
	if err != nil {
		if mon.retry != nil {
			if wait := mon.retry.NextBackOff(); wait != backoff.Stop {
				log.Printf("etl job %s: poll failed, retrying in %s: %v", mon.jobID, wait, err)
				mon.timer = m.scheduler.AfterFunc(wait, func() { m.poll(mon) })
				return
			}
		}
		log.Printf("etl job %s: polling stopped: %v", mon.jobID, err)
		delete(m.monitoring, mon.jobID)
		return
	}
	if mon.retry != nil {
		mon.retry.Reset()
	}

	m.applyJobLocked(*job)
	if job.Status.IsActive() {
		mon.timer = m.scheduler.AfterFunc(m.cfg.PollInterval, func() { m.poll(mon) })
		return
	}
	delete(m.monitoring, mon.jobID)
	log.Printf("etl job %s: finished with status %s", mon.jobID, job.Status)
}

// applyJobLocked stores a polled job and carries its status onto the sheet
// that references it. A job no sheet references any more, because the sheet
// was processed again, only updates the cache. Statuses without a local
// meaning leave the sheet alone.
func (m *FileManager) applyJobLocked(job domain.ETLJob) {
	if job.JobID == "" {
		return
	}
	m.jobs[job.JobID] = job
	fi, si := m.sheetForJobIDLocked(job.JobID)
	if fi < 0 || si < 0 {
		return
	}
	status, ok := job.Status.SheetStatus()
	if !ok {
		return
	}
	m.updateSheetLocked(fi, si, func(s *domain.SheetInfo) {
		if s.ETLStatus != status {
			log.Printf("etl job %s: %s -> sheet %s", job.JobID, job.Status, s.Name)
		}
		s.ETLStatus = status
		if status == domain.SheetETLStatusLoaded && s.LoadedAt == nil {
			if job.CompletedAt != nil && !job.CompletedAt.IsZero() {
				s.LoadedAt = domain.NewTimestamp(job.CompletedAt.Time)
			} else {
				s.LoadedAt = domain.NewTimestamp(m.scheduler.Now())
			}
		}
	})
}

func (m *FileManager) sheetForJobIDLocked(jobID string) (int, int) {
	for fi, file := range m.files {
		for si, sheet := range file.Sheets {
			if sheet.ETLJobID != nil && *sheet.ETLJobID == jobID {
				return fi, si
			}
		}
	}
	return -1, -1
}

// sheetToResumeLocked finds the sheet a listed job loads: the sheet already
// tied to it, or else the job's file and sheet when that sheet has no job yet.
func (m *FileManager) sheetToResumeLocked(job domain.ETLJob) (int, int) {
	if fi, si := m.sheetForJobIDLocked(job.JobID); fi >= 0 {
		return fi, si
	}
	if job.FileID == "" || job.SheetName == "" {
		return -1, -1
	}
	fi, si, err := m.findSheetLocked(job.FileID, job.SheetName)
	if err != nil || m.files[fi].Sheets[si].ETLJobID != nil {
		return -1, -1
	}
	return fi, si
}

func (m *FileManager) attachJobLocked(fi, si int, jobID string) {
	m.updateSheetLocked(fi, si, func(s *domain.SheetInfo) {
		id := jobID
		s.ETLJobID = &id
	})
}

// updateSheetLocked applies fn to a copy of the file and swaps it in, so
// snapshots handed out earlier never change underneath their readers.
func (m *FileManager) updateSheetLocked(fi, si int, fn func(*domain.SheetInfo)) {
	file := m.files[fi].Clone()
	fn(&file.Sheets[si])
	m.files[fi] = file
}

func (m *FileManager) fileIndexLocked(fileID string) int {
	_, idx, ok := lo.FindIndexOf(m.files, func(f domain.UploadedFile) bool { return f.FileID == fileID })
	if !ok {
		return -1
	}
	return idx
}

func (m *FileManager) findSheetLocked(fileID, sheetName string) (int, int, error) {
	fi := m.fileIndexLocked(fileID)
	if fi < 0 {
		return -1, -1, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	si := m.files[fi].SheetIndex(sheetName)
	if si < 0 {
		return fi, -1, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
	}
	return fi, si, nil
}

func (m *FileManager) Files() []domain.UploadedFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.files, func(f domain.UploadedFile, _ int) domain.UploadedFile { return f.Clone() })
}

func (m *FileManager) File(fileID string) (domain.UploadedFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.fileIndexLocked(fileID)
	if idx < 0 {
		return domain.UploadedFile{}, false
	}
	return m.files[idx].Clone(), true
}

// Jobs returns the cached jobs, newest first.
func (m *FileManager) Jobs() []domain.ETLJob {
	m.mu.Lock()
	jobs := lo.Values(m.jobs)
	m.mu.Unlock()

	slices.SortFunc(jobs, func(a, b domain.ETLJob) int {
		at, bt := jobCreated(a), jobCreated(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		switch {
		case a.JobID < b.JobID:
			return -1
		case a.JobID > b.JobID:
			return 1
		default:
			return 0
		}
	})
	return jobs
}

func jobCreated(job domain.ETLJob) time.Time {
	if job.CreatedAt == nil {
		return time.Time{}
	}
	return job.CreatedAt.Time
}

func (m *FileManager) Job(jobID string) (domain.ETLJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	return job, ok
}

func (m *FileManager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

func (m *FileManager) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

func (m *FileManager) ClearError() {
	m.mu.Lock()
	m.errMsg = ""
	m.mu.Unlock()
}

// Close stops every poll loop.
func (m *FileManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id := range m.monitoring {
		m.stopMonitoringLocked(id)
	}
	m.mu.Unlock()
	m.cancel()
}
