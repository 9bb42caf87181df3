package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

type WizardHandler struct {
	wizards *service.WizardRegistry
	storage ports.ObjectStorage
	bucket  string
}

func RegisterWizards(g *echo.Group, wizards *service.WizardRegistry, storage ports.ObjectStorage, bucket string) {
	h := &WizardHandler{wizards: wizards, storage: storage, bucket: bucket}

	r := g.Group("/wizards")
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.DELETE("/:id", h.remove)
	r.PUT("/:id/country", h.selectCountry)
	r.POST("/:id/file", h.selectFile)
	r.DELETE("/:id/file", h.clearFile)
	r.POST("/:id/sheets/toggle", h.toggleSheet)
	r.PUT("/:id/sheets", h.setAllSheets)
	r.PUT("/:id/target-date", h.setTargetDate)
	r.POST("/:id/validate", h.validate)
	r.POST("/:id/next", h.next)
	r.POST("/:id/prev", h.prev)
	r.POST("/:id/retry", h.retry)
	r.DELETE("/:id/error", h.clearError)
}

func (h *WizardHandler) create(c echo.Context) error {
	w := h.wizards.Create(CurrentUserID(c))
	return c.JSON(http.StatusCreated, util.Data("wizard", w.Snapshot()))
}

func (h *WizardHandler) lookup(c echo.Context) (*service.UploadWizard, error) {
	return h.wizards.Get(CurrentUserID(c), c.Param("id"))
}

// respond returns the wizard state either way; failures add the error and
// its status code.
func (h *WizardHandler) respond(c echo.Context, w *service.UploadWizard, err error) error {
	if err != nil {
		return c.JSON(statusFor(err), util.Envelope{
			"error":  err.Error(),
			"wizard": w.Snapshot(),
		})
	}
	return c.JSON(http.StatusOK, util.Data("wizard", w.Snapshot()))
}

// withWizard runs fn against the caller's wizard from the :id parameter.
func (h *WizardHandler) withWizard(c echo.Context, fn func(w *service.UploadWizard) error) error {
	w, err := h.lookup(c)
	if err != nil {
		return respondError(c, err)
	}
	return h.respond(c, w, fn(w))
}

func (h *WizardHandler) get(c echo.Context) error {
	return h.withWizard(c, func(*service.UploadWizard) error { return nil })
}

func (h *WizardHandler) remove(c echo.Context) error {
	if err := h.wizards.Remove(CurrentUserID(c), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *WizardHandler) selectCountry(c echo.Context) error {
	var req struct {
		Country string `json:"country"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
	}
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.SelectCountry(req.Country)
	})
}

// selectFile stages the multipart "file" field and hands it to the wizard.
// Rejected files are removed from staging again.
func (h *WizardHandler) selectFile(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return respondError(c, err)
	}
	header, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("file is required"))
	}
	src, err := header.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("unable to read uploaded file"))
	}
	defer src.Close()

	contentType := header.Header.Get(echo.HeaderContentType)
	handle := &domain.FileHandle{
		Name:        filepath.Base(header.Filename),
		Size:        header.Size,
		ContentType: contentType,
		ObjectKey:   stagingKey(w.OwnerID(), w.ID(), header.Filename),
	}
	ctx := c.Request().Context()
	if header.Size > 0 {
		if _, err := h.storage.Upload(ctx, h.bucket, handle.ObjectKey, contentType, src, header.Size); err != nil {
			c.Logger().Errorf("stage %s: %v", handle.ObjectKey, err)
			return c.JSON(http.StatusBadGateway, util.Error("unable to stage file"))
		}
	}

	if err := w.SelectFile(handle); err != nil {
		if header.Size > 0 {
			if rmErr := h.storage.Remove(ctx, h.bucket, handle.ObjectKey); rmErr != nil {
				c.Logger().Warnf("remove rejected %s: %v", handle.ObjectKey, rmErr)
			}
		}
		return h.respond(c, w, err)
	}
	return h.respond(c, w, nil)
}

func stagingKey(ownerID, wizardID, filename string) string {
	name := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("%s/%s/%s-%s", ownerID, wizardID, uuid.NewString(), name)
}

func (h *WizardHandler) clearFile(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.SelectFile(nil)
	})
}

func (h *WizardHandler) toggleSheet(c echo.Context) error {
	var req struct {
		SheetName string `json:"sheet_name"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SheetName) == "" {
		return c.JSON(http.StatusBadRequest, util.Error("sheet_name is required"))
	}
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.ToggleSheet(req.SheetName)
	})
}

func (h *WizardHandler) setAllSheets(c echo.Context) error {
	var req struct {
		Selected *bool `json:"selected"`
	}
	if err := c.Bind(&req); err != nil || req.Selected == nil {
		return c.JSON(http.StatusBadRequest, util.Error("selected is required"))
	}
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.SetAllSheets(*req.Selected)
	})
}

func (h *WizardHandler) setTargetDate(c echo.Context) error {
	var req struct {
		TargetDate string `json:"target_date"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
	}
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.SetTargetDate(req.TargetDate)
	})
}

func (h *WizardHandler) validate(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		_, err := w.ValidateSelectedSheets(c.Request().Context())
		return err
	})
}

func (h *WizardHandler) next(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.NextStep(c.Request().Context())
	})
}

func (h *WizardHandler) prev(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.PrevStep()
	})
}

func (h *WizardHandler) retry(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		return w.RetryUpload()
	})
}

func (h *WizardHandler) clearError(c echo.Context) error {
	return h.withWizard(c, func(w *service.UploadWizard) error {
		w.ClearError()
		return nil
	})
}
