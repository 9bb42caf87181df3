package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/transport/backendapi"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

var (
	notFoundErrors = []error{
		service.ErrWizardNotFound,
		service.ErrChatSessionNotFound,
		service.ErrFileNotFound,
		service.ErrSheetNotFound,
		service.ErrJobNotFound,
	}
	conflictErrors = []error{
		service.ErrWizardBusy,
		service.ErrWizardClosed,
		service.ErrManagerClosed,
		service.ErrCountryLocked,
		service.ErrStepNotReady,
		service.ErrAtFirstStep,
		service.ErrNothingToRetry,
		service.ErrSheetAlreadyLoaded,
	}
	badRequestErrors = []error{
		service.ErrNoCountrySelected,
		service.ErrUnsupportedCountry,
		service.ErrNoFileSelected,
		service.ErrEmptyFile,
		service.ErrFileTypeNotAllowed,
		service.ErrNoSheetsSelected,
		service.ErrNoUploadedFile,
		service.ErrInvalidTargetDate,
		service.ErrQuestionTooShort,
		service.ErrQuestionTooLong,
		service.ErrInvalidLayoutSettings,
	}
)

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps service and backend errors onto HTTP status codes.
func statusFor(err error) int {
	var apiErr *backendapi.APIError
	switch {
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, badRequestErrors):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, util.Error("internal server error"))
	}
	return c.JSON(status, util.Error(err.Error()))
}
