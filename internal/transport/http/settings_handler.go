package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

func RegisterSettings(g *echo.Group, store ports.KeyValueStore) {
	g.GET("/settings/layout", func(c echo.Context) error {
		settings, err := service.LoadLayoutSettings(c.Request().Context(), store, CurrentUserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, util.Data("settings", settings))
	})

	g.PUT("/settings/layout", func(c echo.Context) error {
		settings := domain.DefaultLayoutSettings()
		if err := c.Bind(&settings); err != nil {
			return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
		}
		if err := service.SaveLayoutSettings(c.Request().Context(), store, CurrentUserID(c), settings); err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, util.Data("settings", settings))
	})
}
