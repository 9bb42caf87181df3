package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/memory"
)

const (
	testBucket       = "staging"
	testAdvanceDelay = 500 * time.Millisecond
)

type wizardHarness struct {
	t         *testing.T
	gw        *fakeGateway
	sched     *fakeScheduler
	storage   *memory.Storage
	wizard    *UploadWizard
	completed []domain.UploadedFile
}

func newWizardHarness(t *testing.T) *wizardHarness {
	t.Helper()
	h := &wizardHarness{
		t: t,
		gw: &fakeGateway{
			uploadResult: &domain.UploadedFile{
				FileID:   "f1",
				Filename: "20240301_inv.xlsx",
				Country:  "TW",
				FileSize: 2048,
				Status:   domain.FileStatusUploaded,
			},
			analyzeResult: &domain.FileAnalysis{
				FileID: "f1",
				Status: domain.FileStatusReady,
				Sheets: []domain.SheetInfo{{Name: "Sheet1", RowCount: 100, ColumnCount: 5}},
			},
			validateResult: map[string]domain.ValidationResult{
				"Sheet1": {IsValid: true, TotalRecords: 100},
			},
			confirmResult: &domain.UploadedFile{
				FileID:   "f1",
				Filename: "20240301_inv.xlsx",
				Country:  "TW",
				Status:   domain.FileStatusConfirmed,
			},
		},
		sched:   newFakeScheduler(),
		storage: memory.NewStorage(),
	}
	h.wizard = NewUploadWizard(h.gw, h.storage, h.sched, WizardConfig{
		ID:           "w1",
		OwnerID:      "user-1",
		Bucket:       testBucket,
		AdvanceDelay: testAdvanceDelay,
		OnComplete: func(f domain.UploadedFile) {
			h.completed = append(h.completed, f)
		},
	})
	return h
}

func (h *wizardHarness) stage(name string, size int) *domain.FileHandle {
	h.t.Helper()
	key := "user-1/" + name
	if _, err := h.storage.Upload(context.Background(), testBucket, key, "", bytes.NewReader(make([]byte, size)), int64(size)); err != nil {
		h.t.Fatalf("stage file: %v", err)
	}
	return &domain.FileHandle{Name: name, Size: int64(size), ObjectKey: key}
}

func (h *wizardHarness) step() domain.WizardStep {
	return h.wizard.Snapshot().CurrentStep
}

// toSheets walks the happy path up to sheet selection.
func (h *wizardHarness) toSheets() {
	h.t.Helper()
	ctx := context.Background()
	if err := h.wizard.SelectCountry("TW"); err != nil {
		h.t.Fatalf("SelectCountry: %v", err)
	}
	if err := h.wizard.NextStep(ctx); err != nil {
		h.t.Fatalf("NextStep from country: %v", err)
	}
	if err := h.wizard.SelectFile(h.stage("inv.xlsx", 2048)); err != nil {
		h.t.Fatalf("SelectFile: %v", err)
	}
	if err := h.wizard.NextStep(ctx); err != nil {
		h.t.Fatalf("NextStep from file: %v", err)
	}
	h.sched.Advance(0)
	h.sched.Advance(testAdvanceDelay)
	if got := h.step(); got != domain.WizardStepSheets {
		h.t.Fatalf("expected sheets step, got %s (error %q)", got, h.wizard.Snapshot().Error)
	}
}

func TestUploadWizard_StepGating(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	if h.wizard.CanGoNext() {
		t.Fatalf("country step must not allow next before a country is chosen")
	}
	if err := h.wizard.NextStep(ctx); !errors.Is(err, ErrNoCountrySelected) {
		t.Fatalf("expected ErrNoCountrySelected, got %v", err)
	}
	if h.wizard.Snapshot().Error == "" {
		t.Fatalf("expected local error to be surfaced")
	}
	_ = h.wizard.SelectCountry("tw")
	if !h.wizard.CanGoNext() {
		t.Fatalf("expected next to be allowed once a country is chosen")
	}
	if h.wizard.Snapshot().SelectedCountry != "TW" {
		t.Fatalf("expected country code to be normalised")
	}
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep: %v", err)
	}

	if h.wizard.CanGoNext() {
		t.Fatalf("file step must not allow next without a file")
	}
	if err := h.wizard.NextStep(ctx); !errors.Is(err, ErrNoFileSelected) {
		t.Fatalf("expected ErrNoFileSelected, got %v", err)
	}
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	if !h.wizard.CanGoNext() {
		t.Fatalf("expected next to be allowed once a file is chosen")
	}
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep: %v", err)
	}

	if h.wizard.CanGoNext() {
		t.Fatalf("upload step must never allow next")
	}
	h.sched.Advance(0)
	if h.wizard.CanGoNext() {
		t.Fatalf("upload step must never allow next, even after analysis")
	}
	if err := h.wizard.NextStep(ctx); !errors.Is(err, ErrStepNotReady) {
		t.Fatalf("expected ErrStepNotReady on upload step, got %v", err)
	}
	h.sched.Advance(testAdvanceDelay)

	if h.wizard.CanGoNext() {
		t.Fatalf("sheets step must not allow next with nothing selected")
	}
	_ = h.wizard.ToggleSheet("Sheet1")
	if !h.wizard.CanGoNext() {
		t.Fatalf("expected next to be allowed with one sheet selected")
	}
	_ = h.wizard.ToggleSheet("Sheet1")
	if h.wizard.CanGoNext() {
		t.Fatalf("expected toggling twice to deselect the sheet")
	}
}

func TestUploadWizard_UploadAnalyzeThenAutoAdvance(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	_ = h.wizard.SelectCountry("TW")
	_ = h.wizard.NextStep(ctx)
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep: %v", err)
	}

	snap := h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepUpload || !snap.IsLoading {
		t.Fatalf("expected loading upload step, got %+v", snap)
	}
	if len(h.gw.callLog()) != 0 {
		t.Fatalf("expected no call before the step task runs")
	}

	h.sched.Advance(0)
	calls := h.gw.callLog()
	if len(calls) != 2 || calls[0] != "upload" || calls[1] != "analyze" {
		t.Fatalf("expected upload then analyze, got %v", calls)
	}
	if h.gw.uploadCountry != "TW" || h.gw.uploadName != "inv.xlsx" || h.gw.uploadBytes != 2048 {
		t.Fatalf("unexpected upload payload: %q %q %d", h.gw.uploadCountry, h.gw.uploadName, h.gw.uploadBytes)
	}

	h.sched.Advance(testAdvanceDelay - time.Millisecond)
	if got := h.step(); got != domain.WizardStepUpload {
		t.Fatalf("advanced before the delay elapsed: %s", got)
	}
	h.sched.Advance(time.Millisecond)

	snap = h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepSheets {
		t.Fatalf("expected auto-advance to sheets, got %s", snap.CurrentStep)
	}
	if snap.UploadedFile == nil || len(snap.UploadedFile.Sheets) != 1 {
		t.Fatalf("expected one analyzed sheet, got %+v", snap.UploadedFile)
	}
	sheet := snap.UploadedFile.Sheets[0]
	if sheet.Name != "Sheet1" || sheet.RowCount != 100 || sheet.ColumnCount != 5 {
		t.Fatalf("unexpected sheet: %+v", sheet)
	}
	if snap.UploadedFile.Status != domain.FileStatusReady {
		t.Fatalf("expected status from analysis, got %s", snap.UploadedFile.Status)
	}
	wantDone := []domain.WizardStep{domain.WizardStepCountry, domain.WizardStepFile, domain.WizardStepUpload}
	if len(snap.CompletedSteps) != len(wantDone) {
		t.Fatalf("expected completed steps %v, got %v", wantDone, snap.CompletedSteps)
	}
}

func TestUploadWizard_UploadFailureStaysForRetry(t *testing.T) {
	h := newWizardHarness(t)
	h.gw.uploadErr = errors.New("file rejected")
	ctx := context.Background()
	_ = h.wizard.SelectCountry("TW")
	_ = h.wizard.NextStep(ctx)
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	_ = h.wizard.NextStep(ctx)
	h.sched.Advance(time.Second)

	snap := h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepUpload || snap.IsLoading {
		t.Fatalf("expected idle upload step after failure, got %+v", snap)
	}
	if snap.Error != "upload failed: file rejected" {
		t.Fatalf("unexpected error %q", snap.Error)
	}
	if h.gw.count("analyze") != 0 {
		t.Fatalf("analyze must not run after a failed upload")
	}

	h.gw.uploadErr = nil
	if err := h.wizard.RetryUpload(); err != nil {
		t.Fatalf("RetryUpload: %v", err)
	}
	h.sched.Advance(0)
	h.sched.Advance(testAdvanceDelay)
	if got := h.step(); got != domain.WizardStepSheets {
		t.Fatalf("expected retry to reach sheets, got %s", got)
	}
	if h.gw.count("upload") != 2 || h.gw.count("analyze") != 1 {
		t.Fatalf("unexpected calls %v", h.gw.callLog())
	}
}

func TestUploadWizard_AnalysisRetryDoesNotReupload(t *testing.T) {
	h := newWizardHarness(t)
	h.gw.analyzeErr = errors.New("sheet parser unavailable")
	ctx := context.Background()
	_ = h.wizard.SelectCountry("TW")
	_ = h.wizard.NextStep(ctx)
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	_ = h.wizard.NextStep(ctx)
	h.sched.Advance(0)

	snap := h.wizard.Snapshot()
	if snap.Error != "analysis failed: sheet parser unavailable" {
		t.Fatalf("unexpected error %q", snap.Error)
	}
	if snap.UploadedFile == nil || snap.UploadedFile.FileID != "f1" {
		t.Fatalf("expected uploaded file to be kept after analysis failure")
	}

	h.gw.analyzeErr = nil
	_ = h.wizard.RetryUpload()
	h.sched.Advance(0)
	h.sched.Advance(testAdvanceDelay)
	if got := h.step(); got != domain.WizardStepSheets {
		t.Fatalf("expected sheets step, got %s", got)
	}
	if h.gw.count("upload") != 1 || h.gw.count("analyze") != 2 {
		t.Fatalf("expected one upload and two analyses, got %v", h.gw.callLog())
	}
}

func TestUploadWizard_SelectFileClearsDependentState(t *testing.T) {
	h := newWizardHarness(t)
	h.toSheets()
	_ = h.wizard.ToggleSheet("Sheet1")
	if _, err := h.wizard.ValidateSelectedSheets(context.Background()); err != nil {
		t.Fatalf("ValidateSelectedSheets: %v", err)
	}
	snap := h.wizard.Snapshot()
	if snap.UploadedFile == nil || len(snap.SelectedSheets) != 1 || len(snap.ValidationResults) != 1 {
		t.Fatalf("expected populated wizard, got %+v", snap)
	}

	if err := h.wizard.SelectFile(h.stage("other.xlsx", 10)); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	snap = h.wizard.Snapshot()
	if snap.UploadedFile != nil || len(snap.SelectedSheets) != 0 || len(snap.ValidationResults) != 0 {
		t.Fatalf("expected dependents cleared by a new file, got %+v", snap)
	}
	if snap.SelectedFile == nil || snap.SelectedFile.Name != "other.xlsx" {
		t.Fatalf("expected new file to be selected")
	}

	if err := h.wizard.SelectFile(nil); err != nil {
		t.Fatalf("SelectFile(nil): %v", err)
	}
	snap = h.wizard.Snapshot()
	if snap.SelectedFile != nil || snap.UploadedFile != nil || len(snap.SelectedSheets) != 0 {
		t.Fatalf("expected everything cleared, got %+v", snap)
	}
}

func TestUploadWizard_SelectFileRejectsBadInput(t *testing.T) {
	h := newWizardHarness(t)
	cases := []struct {
		file *domain.FileHandle
		want error
	}{
		{&domain.FileHandle{Name: "inv.xlsx", Size: 0, ObjectKey: "k"}, ErrEmptyFile},
		{&domain.FileHandle{Name: "inv.xlsx", Size: defaultMaxFileBytes + 1, ObjectKey: "k"}, ErrFileTooLarge},
		{&domain.FileHandle{Name: "inv.pdf", Size: 10, ObjectKey: "k"}, ErrFileTypeNotAllowed},
	}
	for _, tc := range cases {
		if err := h.wizard.SelectFile(tc.file); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.file.Name, tc.want, err)
		}
		if h.wizard.Snapshot().SelectedFile != nil {
			t.Fatalf("rejected file must not be selected")
		}
	}
	if len(h.gw.callLog()) != 0 {
		t.Fatalf("input checks must not call the backend")
	}
}

func TestUploadWizard_CountryRules(t *testing.T) {
	h := newWizardHarness(t)
	if err := h.wizard.SelectCountry("US"); !errors.Is(err, ErrUnsupportedCountry) {
		t.Fatalf("expected ErrUnsupportedCountry, got %v", err)
	}
	_ = h.wizard.SelectCountry("SG")
	_ = h.wizard.NextStep(context.Background())
	if err := h.wizard.SelectCountry("TW"); !errors.Is(err, ErrCountryLocked) {
		t.Fatalf("expected ErrCountryLocked after leaving the country step, got %v", err)
	}
}

func TestUploadWizard_ValidateWithoutSheetsMakesNoCall(t *testing.T) {
	h := newWizardHarness(t)
	h.toSheets()
	calls := len(h.gw.callLog())

	_, err := h.wizard.ValidateSelectedSheets(context.Background())
	if !errors.Is(err, ErrNoSheetsSelected) {
		t.Fatalf("expected ErrNoSheetsSelected, got %v", err)
	}
	if len(h.gw.callLog()) != calls {
		t.Fatalf("expected no backend call, got %v", h.gw.callLog())
	}
	if h.wizard.Snapshot().Error == "" {
		t.Fatalf("expected local error on the wizard")
	}
}

func TestUploadWizard_ToggleUnknownSheetIsNoop(t *testing.T) {
	h := newWizardHarness(t)
	if err := h.wizard.ToggleSheet("Sheet1"); err != nil {
		t.Fatalf("ToggleSheet before upload: %v", err)
	}
	h.toSheets()
	_ = h.wizard.ToggleSheet("Missing")
	if got := h.wizard.Snapshot().SelectedSheets; len(got) != 0 {
		t.Fatalf("expected unknown sheet to be ignored, got %v", got)
	}
	_ = h.wizard.SetAllSheets(true)
	if got := h.wizard.Snapshot().SelectedSheets; len(got) != 1 || got[0] != "Sheet1" {
		t.Fatalf("expected select-all to pick every sheet, got %v", got)
	}
	_ = h.wizard.SetAllSheets(false)
	if got := h.wizard.Snapshot().SelectedSheets; len(got) != 0 {
		t.Fatalf("expected select-none to clear, got %v", got)
	}
}

func TestUploadWizard_ConfirmCompletesAndCloses(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	h.toSheets()
	_ = h.wizard.ToggleSheet("Sheet1")
	if err := h.wizard.SetTargetDate("2024-02-29"); err != nil {
		t.Fatalf("SetTargetDate: %v", err)
	}
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep to confirm: %v", err)
	}
	if !h.wizard.CanGoNext() {
		t.Fatalf("confirm step always allows next")
	}

	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep on confirm: %v", err)
	}
	if len(h.gw.validateSheets) != 1 || h.gw.validateSheets[0] != "Sheet1" {
		t.Fatalf("unexpected validated sheets %v", h.gw.validateSheets)
	}
	if h.gw.confirmDate != "2024-02-29" {
		t.Fatalf("expected target date to be sent, got %q", h.gw.confirmDate)
	}
	if len(h.completed) != 1 {
		t.Fatalf("expected completion callback once, got %d", len(h.completed))
	}
	done := h.completed[0]
	if done.Status != domain.FileStatusConfirmed || len(done.Sheets) != 1 {
		t.Fatalf("expected confirmed file with analyzed sheets, got %+v", done)
	}
	snap := h.wizard.Snapshot()
	if !snap.Completed || !snap.Closed {
		t.Fatalf("expected wizard completed and closed, got %+v", snap)
	}
	if err := h.wizard.NextStep(ctx); !errors.Is(err, ErrWizardClosed) {
		t.Fatalf("expected ErrWizardClosed, got %v", err)
	}
}

func TestUploadWizard_InvalidSheetBlocksConfirm(t *testing.T) {
	h := newWizardHarness(t)
	h.gw.validateResult = map[string]domain.ValidationResult{
		"Sheet1": {IsValid: false, TotalRecords: 100, Issues: []domain.ValidationIssue{{Type: "missing_required_field", Message: "sku is empty"}}},
	}
	ctx := context.Background()
	h.toSheets()
	_ = h.wizard.ToggleSheet("Sheet1")
	_ = h.wizard.NextStep(ctx)

	err := h.wizard.NextStep(ctx)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if h.gw.count("confirm") != 0 {
		t.Fatalf("confirm must not run when validation fails")
	}
	snap := h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepConfirm || snap.Closed || snap.IsLoading {
		t.Fatalf("expected to stay on confirm, got %+v", snap)
	}
	if res, ok := snap.ValidationResults["Sheet1"]; !ok || res.IsValid {
		t.Fatalf("expected stored invalid result, got %+v", snap.ValidationResults)
	}
}

func TestUploadWizard_ConfirmFailureIsRecoverable(t *testing.T) {
	h := newWizardHarness(t)
	h.gw.confirmErr = errors.New("database unavailable")
	ctx := context.Background()
	h.toSheets()
	_ = h.wizard.ToggleSheet("Sheet1")
	_ = h.wizard.NextStep(ctx)

	if err := h.wizard.NextStep(ctx); !hasPrefix(err, "confirm failed: ") {
		t.Fatalf("expected confirm failure, got %v", err)
	}
	h.gw.confirmErr = nil
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("expected completion after retry")
	}
}

func TestUploadWizard_BackAndForthKeepsUpload(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	h.toSheets()
	calls := len(h.gw.callLog())

	if err := h.wizard.PrevStep(); err != nil {
		t.Fatalf("PrevStep: %v", err)
	}
	h.sched.Advance(time.Minute)
	snap := h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepUpload || snap.UploadedFile == nil {
		t.Fatalf("expected to rest on upload step with the file kept, got %+v", snap)
	}

	_ = h.wizard.PrevStep()
	if err := h.wizard.NextStep(ctx); err != nil {
		t.Fatalf("NextStep: %v", err)
	}
	h.sched.Advance(testAdvanceDelay)
	if got := h.step(); got != domain.WizardStepSheets {
		t.Fatalf("expected re-entry to advance straight to sheets, got %s", got)
	}
	if len(h.gw.callLog()) != calls {
		t.Fatalf("expected no new backend calls, got %v", h.gw.callLog())
	}

	for i := 0; i < 3; i++ {
		_ = h.wizard.PrevStep()
	}
	if err := h.wizard.PrevStep(); !errors.Is(err, ErrAtFirstStep) {
		t.Fatalf("expected ErrAtFirstStep, got %v", err)
	}
}

func TestUploadWizard_CloseCancelsPendingAdvance(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	_ = h.wizard.SelectCountry("TW")
	_ = h.wizard.NextStep(ctx)
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	_ = h.wizard.NextStep(ctx)
	h.sched.Advance(0)

	h.wizard.Close()
	if h.sched.Pending() != 0 {
		t.Fatalf("expected close to stop the auto-advance timer")
	}
	h.sched.Advance(time.Minute)
	snap := h.wizard.Snapshot()
	if snap.CurrentStep != domain.WizardStepUpload || !snap.Closed {
		t.Fatalf("expected closed wizard to stay put, got %+v", snap)
	}
	if err := h.wizard.SelectFile(nil); !errors.Is(err, ErrWizardClosed) {
		t.Fatalf("expected ErrWizardClosed, got %v", err)
	}
}

func TestUploadWizard_SelectFileDuringUploadDiscardsResult(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	_ = h.wizard.SelectCountry("TW")
	_ = h.wizard.NextStep(ctx)
	_ = h.wizard.SelectFile(h.stage("inv.xlsx", 2048))
	_ = h.wizard.NextStep(ctx)

	_ = h.wizard.SelectFile(h.stage("second.xlsx", 64))
	h.sched.Advance(time.Minute)
	if len(h.gw.callLog()) != 0 {
		t.Fatalf("expected the stale step task to be dropped, got %v", h.gw.callLog())
	}
	snap := h.wizard.Snapshot()
	if snap.IsLoading || snap.UploadedFile != nil {
		t.Fatalf("expected idle wizard without upload, got %+v", snap)
	}

	_ = h.wizard.RetryUpload()
	h.sched.Advance(0)
	if h.gw.uploadName != "second.xlsx" {
		t.Fatalf("expected the new file to be uploaded, got %q", h.gw.uploadName)
	}
}

func TestUploadWizard_TargetDate(t *testing.T) {
	h := newWizardHarness(t)
	if got := h.wizard.Snapshot().TargetDate; got != "2024-03-01" {
		t.Fatalf("expected today's date by default, got %q", got)
	}
	if err := h.wizard.SetTargetDate("01/03/2024"); !errors.Is(err, ErrInvalidTargetDate) {
		t.Fatalf("expected ErrInvalidTargetDate, got %v", err)
	}
	if err := h.wizard.SetTargetDate(""); err != nil {
		t.Fatalf("empty date should default to today: %v", err)
	}
	h.wizard.ClearError()
	if h.wizard.Snapshot().Error != "" {
		t.Fatalf("expected ClearError to dismiss the error")
	}
}
