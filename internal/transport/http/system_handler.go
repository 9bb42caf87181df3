package http

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

type systemBackend interface {
	healthChecker
	ValidateFile(ctx context.Context, file ports.FileUpload, sheetName string) (*domain.ValidationResult, error)
}

// RegisterSystem exposes the ETL backend's health and its one-shot file
// validation, which takes a spreadsheet without going through a wizard.
func RegisterSystem(g *echo.Group, backend systemBackend) {
	g.GET("/health", func(c echo.Context) error {
		health, err := backend.Health(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, util.Envelope{
				"status": "unreachable",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, util.Data("health", health))
	})

	g.POST("/validate", func(c echo.Context) error {
		header, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, util.Error("file is required"))
		}
		src, err := header.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, util.Error("unable to read uploaded file"))
		}
		defer src.Close()

		result, err := backend.ValidateFile(c.Request().Context(), ports.FileUpload{
			Filename:    filepath.Base(header.Filename),
			ContentType: header.Header.Get(echo.HeaderContentType),
			Size:        header.Size,
			Reader:      src,
		}, strings.TrimSpace(c.FormValue("sheet_name")))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, util.Data("validation", result))
	})
}
