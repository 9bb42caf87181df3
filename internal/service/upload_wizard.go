package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/samber/lo"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

var (
	ErrWizardClosed       = errors.New("wizard is closed")
	ErrWizardBusy         = errors.New("wizard is busy")
	ErrNoCountrySelected  = errors.New("select a country first")
	ErrUnsupportedCountry = errors.New("country is not supported")
	ErrCountryLocked      = errors.New("country cannot be changed after upload")
	ErrNoFileSelected     = errors.New("select a file first")
	ErrEmptyFile          = errors.New("file is empty")
	ErrFileTooLarge       = errors.New("file is too large")
	ErrFileTypeNotAllowed = errors.New("file type is not allowed")
	ErrNoSheetsSelected   = errors.New("select at least one sheet")
	ErrNoUploadedFile     = errors.New("file has not been uploaded yet")
	ErrStepNotReady       = errors.New("current step is not complete")
	ErrAtFirstStep        = errors.New("already at the first step")
	ErrNothingToRetry     = errors.New("nothing to retry on this step")
	ErrInvalidTargetDate  = errors.New("target date must be YYYY-MM-DD")
	ErrValidationFailed   = errors.New("selected sheets did not pass validation")
)

const targetDateLayout = "2006-01-02"

const (
	defaultAdvanceDelay = 500 * time.Millisecond
	defaultMaxFileBytes = int64(50 * 1024 * 1024)
)

var defaultAllowedExtensions = []string{".xlsx", ".xls", ".csv"}

var defaultSupportedCountries = []string{"TW", "SG", "PM"}

const (
	eventNext = "next"
	eventPrev = "prev"
)

// wizardGateway is the part of the ETL backend the wizard drives.
type wizardGateway interface {
	UploadFile(ctx context.Context, file ports.FileUpload, country string) (*domain.UploadedFile, error)
	AnalyzeFile(ctx context.Context, fileID string) (*domain.FileAnalysis, error)
	ValidateSheets(ctx context.Context, fileID string, sheetNames []string) (map[string]domain.ValidationResult, error)
	ConfirmUpload(ctx context.Context, fileID, targetDate string) (*domain.UploadedFile, error)
}

type WizardConfig struct {
	ID      string
	OwnerID string
	// Bucket holds staged files; FileHandle.ObjectKey is relative to it.
	Bucket             string
	AdvanceDelay       time.Duration
	MaxFileBytes       int64
	AllowedExtensions  []string
	SupportedCountries []string
	// OnComplete receives the confirmed file. It runs without the wizard lock.
	OnComplete func(domain.UploadedFile)
}

// UploadWizard walks one upload through country, file, upload/analyze, sheet
// selection and validate/confirm. All methods are safe for concurrent use.
type UploadWizard struct {
	gateway   wizardGateway
	storage   ports.ObjectStorage
	scheduler util.Scheduler
	cfg       WizardConfig
	allowed   map[string]struct{}
	countries map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	machine    *fsm.FSM
	completed  map[domain.WizardStep]struct{}
	country    string
	file       *domain.FileHandle
	uploaded   *domain.UploadedFile
	selected   []string
	results    map[string]domain.ValidationResult
	targetDate string
	loading    bool
	errMsg     string
	done       bool
	closed     bool

	// pending is the step-2 task or the auto-advance timer. generation is
	// bumped whenever pending is dropped so late callbacks see they are stale.
	pending    util.Timer
	generation uint64
}

func NewUploadWizard(gateway wizardGateway, storage ports.ObjectStorage, scheduler util.Scheduler, cfg WizardConfig) *UploadWizard {
	if scheduler == nil {
		scheduler = util.NewScheduler()
	}
	if cfg.AdvanceDelay <= 0 {
		cfg.AdvanceDelay = defaultAdvanceDelay
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = defaultAllowedExtensions
	}
	if len(cfg.SupportedCountries) == 0 {
		cfg.SupportedCountries = defaultSupportedCountries
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &UploadWizard{
		gateway:   gateway,
		storage:   storage,
		scheduler: scheduler,
		cfg:       cfg,
		allowed: lo.SliceToMap(cfg.AllowedExtensions, func(ext string) (string, struct{}) {
			return strings.ToLower(ext), struct{}{}
		}),
		countries: lo.SliceToMap(cfg.SupportedCountries, func(code string) (string, struct{}) {
			return strings.ToUpper(code), struct{}{}
		}),
		ctx:        ctx,
		cancel:     cancel,
		completed:  make(map[domain.WizardStep]struct{}),
		results:    make(map[string]domain.ValidationResult),
		targetDate: scheduler.Now().Format(targetDateLayout),
	}
	w.machine = newWizardMachine(w.markCompleted)
	return w
}

func newWizardMachine(onNext func(from string)) *fsm.FSM {
	var events fsm.Events
	for s := domain.WizardStepCountry; s < domain.WizardStepConfirm; s++ {
		events = append(events,
			fsm.EventDesc{Name: eventNext, Src: []string{s.String()}, Dst: (s + 1).String()},
			fsm.EventDesc{Name: eventPrev, Src: []string{(s + 1).String()}, Dst: s.String()},
		)
	}
	return fsm.NewFSM(domain.WizardStepCountry.String(), events, fsm.Callbacks{
		"after_" + eventNext: func(_ context.Context, e *fsm.Event) {
			onNext(e.Src)
		},
	})
}

// markCompleted runs inside machine.Event, with w.mu held.
func (w *UploadWizard) markCompleted(from string) {
	if step, ok := domain.ParseWizardStep(from); ok {
		w.completed[step] = struct{}{}
	}
}

func (w *UploadWizard) ID() string      { return w.cfg.ID }
func (w *UploadWizard) OwnerID() string { return w.cfg.OwnerID }

func (w *UploadWizard) step() domain.WizardStep {
	step, _ := domain.ParseWizardStep(w.machine.Current())
	return step
}

func (w *UploadWizard) Snapshot() domain.WizardSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	step := w.step()
	snap := domain.WizardSnapshot{
		ID:                w.cfg.ID,
		CurrentStep:       step,
		CurrentStepName:   step.String(),
		SelectedCountry:   w.country,
		SelectedSheets:    append([]string{}, w.selected...),
		ValidationResults: make(map[string]domain.ValidationResult, len(w.results)),
		TargetDate:        w.targetDate,
		IsLoading:         w.loading,
		Error:             w.errMsg,
		CanGoNext:         w.canGoNextLocked(),
		CanGoPrev:         !w.closed && !w.loading && step > domain.WizardStepCountry,
		Completed:         w.done,
		Closed:            w.closed,
	}
	for s := domain.WizardStepCountry; s <= domain.WizardStepConfirm; s++ {
		if _, ok := w.completed[s]; ok {
			snap.CompletedSteps = append(snap.CompletedSteps, s)
		}
	}
	if snap.CompletedSteps == nil {
		snap.CompletedSteps = []domain.WizardStep{}
	}
	if w.file != nil {
		file := *w.file
		snap.SelectedFile = &file
	}
	if w.uploaded != nil {
		uploaded := w.uploaded.Clone()
		snap.UploadedFile = &uploaded
	}
	for name, res := range w.results {
		snap.ValidationResults[name] = res.Clone()
	}
	return snap
}

func (w *UploadWizard) CanGoNext() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canGoNextLocked()
}

func (w *UploadWizard) canGoNextLocked() bool {
	if w.closed || w.loading {
		return false
	}
	switch w.step() {
	case domain.WizardStepCountry:
		return w.country != ""
	case domain.WizardStepFile:
		return w.file != nil
	case domain.WizardStepUpload:
		return false
	case domain.WizardStepSheets:
		return len(w.selected) > 0
	case domain.WizardStepConfirm:
		return true
	default:
		return false
	}
}

func (w *UploadWizard) SelectCountry(code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	if w.step() != domain.WizardStepCountry || w.uploaded != nil {
		return ErrCountryLocked
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := w.countries[code]; !ok {
		return w.failLocked(fmt.Errorf("%w: %q", ErrUnsupportedCountry, code))
	}
	w.country = code
	w.errMsg = ""
	return nil
}

// SelectFile replaces the chosen file; nil clears it. Either way the uploaded
// record, sheet selection and validation results are dropped.
func (w *UploadWizard) SelectFile(file *domain.FileHandle) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWizardClosed
	}
	if file != nil {
		if err := w.checkFile(*file); err != nil {
			err = w.failLocked(err)
			w.mu.Unlock()
			return err
		}
	}

	w.dropPendingLocked()
	previous := w.file
	if file != nil {
		handle := *file
		if handle.SelectedAt.IsZero() {
			handle.SelectedAt = w.scheduler.Now()
		}
		w.file = &handle
	} else {
		w.file = nil
	}
	w.uploaded = nil
	w.selected = nil
	w.results = make(map[string]domain.ValidationResult)
	w.loading = false
	w.errMsg = ""
	w.mu.Unlock()

	if previous != nil && (file == nil || previous.ObjectKey != file.ObjectKey) {
		go w.discardStaged(*previous)
	}
	return nil
}

func (w *UploadWizard) checkFile(file domain.FileHandle) error {
	if file.Size <= 0 {
		return ErrEmptyFile
	}
	if file.Size > w.cfg.MaxFileBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, file.Size, w.cfg.MaxFileBytes)
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	if _, ok := w.allowed[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrFileTypeNotAllowed, ext)
	}
	return nil
}

// ToggleSheet flips one sheet in the selection. Unknown sheets are ignored.
func (w *UploadWizard) ToggleSheet(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	if w.uploaded == nil || w.uploaded.SheetIndex(name) < 0 {
		return nil
	}
	if lo.Contains(w.selected, name) {
		w.selected = lo.Without(w.selected, name)
	} else {
		w.selected = append(w.selected, name)
	}
	return nil
}

func (w *UploadWizard) SetAllSheets(selected bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	if !selected || w.uploaded == nil {
		w.selected = nil
		return nil
	}
	w.selected = lo.Map(w.uploaded.Sheets, func(s domain.SheetInfo, _ int) string { return s.Name })
	return nil
}

func (w *UploadWizard) SetTargetDate(date string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	normalized, err := normalizeTargetDate(date, w.scheduler.Now())
	if err != nil {
		return w.failLocked(err)
	}
	w.targetDate = normalized
	return nil
}

func (w *UploadWizard) ClearError() {
	w.mu.Lock()
	w.errMsg = ""
	w.mu.Unlock()
}

// NextStep advances one step when the current step allows it. On the last
// step it validates and confirms, then completes and closes the wizard.
func (w *UploadWizard) NextStep(ctx context.Context) error {
	w.mu.Lock()
	if err := w.readyLocked(); err != nil {
		w.mu.Unlock()
		return err
	}

	switch step := w.step(); step {
	case domain.WizardStepCountry:
		if w.country == "" {
			err := w.failLocked(ErrNoCountrySelected)
			w.mu.Unlock()
			return err
		}
	case domain.WizardStepFile:
		if w.file == nil {
			err := w.failLocked(ErrNoFileSelected)
			w.mu.Unlock()
			return err
		}
	case domain.WizardStepUpload:
		w.mu.Unlock()
		return ErrStepNotReady
	case domain.WizardStepSheets:
		if len(w.selected) == 0 {
			err := w.failLocked(ErrNoSheetsSelected)
			w.mu.Unlock()
			return err
		}
	case domain.WizardStepConfirm:
		w.mu.Unlock()
		return w.finish(ctx)
	}

	if err := w.machine.Event(w.ctx, eventNext); err != nil {
		w.mu.Unlock()
		return err
	}
	w.errMsg = ""
	if w.step() == domain.WizardStepUpload {
		w.enterUploadLocked()
	}
	w.mu.Unlock()
	return nil
}

func (w *UploadWizard) PrevStep() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.readyLocked(); err != nil {
		return err
	}
	if !w.machine.Can(eventPrev) {
		return ErrAtFirstStep
	}
	w.dropPendingLocked()
	w.errMsg = ""
	return w.machine.Event(w.ctx, eventPrev)
}

// RetryUpload re-runs the upload step after a failure. When the upload itself
// went through and only the analysis failed, only the analysis is repeated.
func (w *UploadWizard) RetryUpload() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.readyLocked(); err != nil {
		return err
	}
	if w.step() != domain.WizardStepUpload {
		return ErrNothingToRetry
	}
	if w.file == nil && w.uploaded == nil {
		return w.failLocked(ErrNoFileSelected)
	}
	w.dropPendingLocked()
	w.enterUploadLocked()
	return nil
}

// ValidateSelectedSheets asks the backend to validate the selection and
// stores the results per sheet. An empty selection fails without a call.
func (w *UploadWizard) ValidateSelectedSheets(ctx context.Context) (map[string]domain.ValidationResult, error) {
	w.mu.Lock()
	if err := w.readyLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	results, err := w.validateLocked(ctx)
	if err == nil {
		w.loading = false
	}
	w.mu.Unlock()
	return results, err
}

// validateLocked is entered with w.mu held and returns with it held; the lock
// is released around the remote call. On success loading is still set.
func (w *UploadWizard) validateLocked(ctx context.Context) (map[string]domain.ValidationResult, error) {
	if len(w.selected) == 0 {
		return nil, w.failLocked(ErrNoSheetsSelected)
	}
	if w.uploaded == nil {
		return nil, w.failLocked(ErrNoUploadedFile)
	}
	fileID := w.uploaded.FileID
	sheets := append([]string(nil), w.selected...)
	gen := w.generation
	w.loading = true
	w.errMsg = ""

	w.mu.Unlock()
	results, err := w.gateway.ValidateSheets(ctx, fileID, sheets)
	w.mu.Lock()

	if w.closed {
		return nil, ErrWizardClosed
	}
	if gen != w.generation {
		return nil, ErrWizardBusy
	}
	if err != nil {
		w.loading = false
		return nil, w.failLocked(fmt.Errorf("validation failed: %w", err))
	}
	for name, res := range results {
		w.results[name] = res.Clone()
	}
	return results, nil
}

func (w *UploadWizard) finish(ctx context.Context) error {
	w.mu.Lock()
	results, err := w.validateLocked(ctx)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	invalid := lo.Filter(w.selected, func(name string, _ int) bool {
		res, ok := results[name]
		return !ok || !res.IsValid
	})
	if len(invalid) > 0 {
		w.loading = false
		err := w.failLocked(fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(invalid, ", ")))
		w.mu.Unlock()
		return err
	}
	fileID := w.uploaded.FileID
	targetDate := w.targetDate
	gen := w.generation
	w.mu.Unlock()

	confirmed, err := w.gateway.ConfirmUpload(ctx, fileID, targetDate)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWizardClosed
	}
	if gen != w.generation {
		w.mu.Unlock()
		return ErrWizardBusy
	}
	w.loading = false
	if err != nil {
		err = w.failLocked(fmt.Errorf("confirm failed: %w", err))
		w.mu.Unlock()
		return err
	}
	final := mergeConfirmed(*w.uploaded, confirmed)
	w.uploaded = &final
	w.completed[domain.WizardStepConfirm] = struct{}{}
	w.done = true
	w.mu.Unlock()

	log.Printf("wizard %s: file %s confirmed for %s", w.cfg.ID, final.FileID, targetDate)
	if w.cfg.OnComplete != nil {
		w.cfg.OnComplete(final.Clone())
	}
	w.Close()
	return nil
}

// mergeConfirmed keeps the analyzed sheets when the confirm response omits
// them.
func mergeConfirmed(current domain.UploadedFile, confirmed *domain.UploadedFile) domain.UploadedFile {
	if confirmed == nil {
		current.Status = domain.FileStatusConfirmed
		return current
	}
	out := confirmed.Clone()
	if len(out.Sheets) == 0 {
		out.Sheets = current.Clone().Sheets
	}
	if out.FileID == "" {
		out.FileID = current.FileID
	}
	return out
}

// Close cancels pending work. Later calls fail with ErrWizardClosed.
func (w *UploadWizard) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.loading = false
	w.dropPendingLocked()
	staged := w.file
	w.mu.Unlock()

	w.cancel()
	if staged != nil {
		go w.discardStaged(*staged)
	}
}

func (w *UploadWizard) readyLocked() error {
	if w.closed {
		return ErrWizardClosed
	}
	if w.loading {
		return ErrWizardBusy
	}
	return nil
}

func (w *UploadWizard) failLocked(err error) error {
	w.errMsg = err.Error()
	return err
}

func (w *UploadWizard) dropPendingLocked() {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.generation++
}

// enterUploadLocked starts the upload step: upload then analyze in the
// background, or straight to the auto-advance when sheets are already known.
func (w *UploadWizard) enterUploadLocked() {
	if w.uploaded != nil && len(w.uploaded.Sheets) > 0 {
		w.scheduleAdvanceLocked()
		return
	}
	w.loading = true
	w.errMsg = ""
	gen := w.generation
	w.pending = w.scheduler.AfterFunc(0, func() { w.runUploadStep(gen) })
}

func (w *UploadWizard) scheduleAdvanceLocked() {
	gen := w.generation
	w.pending = w.scheduler.AfterFunc(w.cfg.AdvanceDelay, func() { w.autoAdvance(gen) })
}

func (w *UploadWizard) autoAdvance(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.generation || w.step() != domain.WizardStepUpload {
		return
	}
	w.pending = nil
	if err := w.machine.Event(w.ctx, eventNext); err != nil {
		log.Printf("wizard %s: auto-advance: %v", w.cfg.ID, err)
	}
}

func (w *UploadWizard) runUploadStep(gen uint64) {
	w.mu.Lock()
	if w.closed || gen != w.generation {
		w.mu.Unlock()
		return
	}
	country := w.country
	var file domain.FileHandle
	if w.file != nil {
		file = *w.file
	}
	var uploaded *domain.UploadedFile
	if w.uploaded != nil {
		clone := w.uploaded.Clone()
		uploaded = &clone
	}
	w.mu.Unlock()

	if uploaded == nil {
		up, err := w.upload(file, country)
		if err != nil {
			w.failUploadStep(gen, fmt.Errorf("upload failed: %w", err))
			return
		}
		w.mu.Lock()
		if w.closed || gen != w.generation {
			w.mu.Unlock()
			return
		}
		clone := up.Clone()
		w.uploaded = &clone
		w.mu.Unlock()
		uploaded = up
		log.Printf("wizard %s: uploaded %s as %s", w.cfg.ID, file.Name, up.FileID)
		go w.discardStaged(file)
	}

	analysis, err := w.gateway.AnalyzeFile(w.ctx, uploaded.FileID)
	if err != nil {
		w.failUploadStep(gen, fmt.Errorf("analysis failed: %w", err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.generation || w.uploaded == nil {
		return
	}
	sheets := make([]domain.SheetInfo, len(analysis.Sheets))
	for i, sheet := range analysis.Sheets {
		sheets[i] = sheet.Clone()
	}
	w.uploaded.Sheets = sheets
	if analysis.Status != "" {
		w.uploaded.Status = analysis.Status
	}
	w.loading = false
	w.pending = nil
	log.Printf("wizard %s: analyzed %s, %d sheet(s)", w.cfg.ID, uploaded.FileID, len(sheets))
	w.scheduleAdvanceLocked()
}

func (w *UploadWizard) upload(file domain.FileHandle, country string) (*domain.UploadedFile, error) {
	if file.ObjectKey == "" {
		return nil, ErrNoFileSelected
	}
	reader, err := w.storage.Open(w.ctx, w.cfg.Bucket, file.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return w.gateway.UploadFile(w.ctx, ports.FileUpload{
		Filename:    file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		Reader:      reader,
	}, country)
}

func (w *UploadWizard) failUploadStep(gen uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.generation {
		return
	}
	w.loading = false
	w.pending = nil
	w.errMsg = err.Error()
	log.Printf("wizard %s: %v", w.cfg.ID, err)
}

func (w *UploadWizard) discardStaged(file domain.FileHandle) {
	if w.storage == nil || file.ObjectKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.storage.Remove(ctx, w.cfg.Bucket, file.ObjectKey); err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
		log.Printf("wizard %s: remove staged %s: %v", w.cfg.ID, file.ObjectKey, err)
	}
}

// normalizeTargetDate checks YYYY-MM-DD and defaults an empty value to today.
func normalizeTargetDate(date string, now time.Time) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return now.Format(targetDateLayout), nil
	}
	parsed, err := time.Parse(targetDateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTargetDate, date)
	}
	return parsed.Format(targetDateLayout), nil
}
