package domain

import "time"

type WizardStep int

const (
	WizardStepCountry WizardStep = iota
	WizardStepFile
	WizardStepUpload
	WizardStepSheets
	WizardStepConfirm
)

const WizardStepCount = 5

func (s WizardStep) String() string {
	switch s {
	case WizardStepCountry:
		return "country"
	case WizardStepFile:
		return "file"
	case WizardStepUpload:
		return "upload"
	case WizardStepSheets:
		return "sheets"
	case WizardStepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// ParseWizardStep is the inverse of String.
func ParseWizardStep(name string) (WizardStep, bool) {
	for s := WizardStepCountry; s <= WizardStepConfirm; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// FileHandle points at a file the user picked but has not uploaded yet. The
// bytes live in staging storage under ObjectKey.
type FileHandle struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	ObjectKey   string    `json:"object_key"`
	SelectedAt  time.Time `json:"selected_at"`
}

type WizardSnapshot struct {
	ID                string                      `json:"id"`
	CurrentStep       WizardStep                  `json:"current_step"`
	CurrentStepName   string                      `json:"current_step_name"`
	CompletedSteps    []WizardStep                `json:"completed_steps"`
	SelectedCountry   string                      `json:"selected_country"`
	SelectedFile      *FileHandle                 `json:"selected_file,omitempty"`
	UploadedFile      *UploadedFile               `json:"uploaded_file,omitempty"`
	SelectedSheets    []string                    `json:"selected_sheets"`
	ValidationResults map[string]ValidationResult `json:"validation_results"`
	TargetDate        string                      `json:"target_date"`
	IsLoading         bool                        `json:"is_loading"`
	Error             string                      `json:"error,omitempty"`
	CanGoNext         bool                        `json:"can_go_next"`
	CanGoPrev         bool                        `json:"can_go_prev"`
	Completed         bool                        `json:"completed"`
	Closed            bool                        `json:"closed"`
}
