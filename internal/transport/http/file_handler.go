package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

type FileHandler struct {
	managers *service.ManagerRegistry
}

func RegisterFiles(g *echo.Group, managers *service.ManagerRegistry) {
	h := &FileHandler{managers: managers}

	g.GET("/files", h.listFiles)
	g.POST("/files/reload", h.reloadFiles)
	g.DELETE("/files/error", h.clearError)
	g.GET("/files/:file_id", h.getFile)
	g.DELETE("/files/:file_id", h.deleteFile)
	g.POST("/files/:file_id/refresh", h.refreshFile)
	g.POST("/files/:file_id/sheets/:sheet_name/process", h.processSheet)

	g.GET("/jobs", h.listJobs)
	g.POST("/jobs/reload", h.reloadJobs)
	g.GET("/jobs/:job_id", h.getJob)
	g.POST("/jobs/:job_id/cancel", h.cancelJob)
}

func (h *FileHandler) manager(c echo.Context) *service.FileManager {
	return h.managers.Get(c.Request().Context(), CurrentUserID(c))
}

func managerState(m *service.FileManager) util.Envelope {
	return util.Envelope{
		"files":   m.Files(),
		"loading": m.Loading(),
		"error":   m.Error(),
	}
}

func (h *FileHandler) listFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, managerState(h.manager(c)))
}

// reloadFiles refetches the list. A failed reload still answers with the
// list kept from before.
func (h *FileHandler) reloadFiles(c echo.Context) error {
	m := h.manager(c)
	if err := m.LoadFiles(c.Request().Context()); err != nil {
		state := managerState(m)
		return c.JSON(statusFor(err), state)
	}
	return c.JSON(http.StatusOK, managerState(m))
}

func (h *FileHandler) clearError(c echo.Context) error {
	m := h.manager(c)
	m.ClearError()
	return c.JSON(http.StatusOK, managerState(m))
}

func (h *FileHandler) getFile(c echo.Context) error {
	file, ok := h.manager(c).File(c.Param("file_id"))
	if !ok {
		return respondError(c, service.ErrFileNotFound)
	}
	return c.JSON(http.StatusOK, util.Data("file", file))
}

func (h *FileHandler) deleteFile(c echo.Context) error {
	m := h.manager(c)
	result, err := m.DeleteFile(c.Request().Context(), c.Param("file_id"))
	if err != nil {
		return respondError(c, err)
	}
	state := managerState(m)
	state["deletion"] = result
	return c.JSON(http.StatusOK, state)
}

func (h *FileHandler) refreshFile(c echo.Context) error {
	file, err := h.manager(c).RefreshFile(c.Request().Context(), c.Param("file_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, util.Data("file", file))
}

func (h *FileHandler) processSheet(c echo.Context) error {
	var req struct {
		TargetDate string `json:"target_date"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
		}
	}
	m := h.manager(c)
	job, err := m.ProcessSheet(c.Request().Context(), c.Param("file_id"), c.Param("sheet_name"), req.TargetDate)
	if err != nil {
		return respondError(c, err)
	}
	file, _ := m.File(c.Param("file_id"))
	return c.JSON(http.StatusAccepted, util.Envelope{
		"job":  job,
		"file": file,
	})
}

func (h *FileHandler) listJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, util.Data("jobs", h.manager(c).Jobs()))
}

func (h *FileHandler) reloadJobs(c echo.Context) error {
	m := h.manager(c)
	if err := m.LoadJobs(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, util.Data("jobs", m.Jobs()))
}

func (h *FileHandler) getJob(c echo.Context) error {
	m := h.manager(c)
	jobID := c.Param("job_id")
	job, ok := m.Job(jobID)
	if !ok {
		return respondError(c, service.ErrJobNotFound)
	}
	return c.JSON(http.StatusOK, util.Envelope{
		"job":        job,
		"monitoring": m.IsMonitoring(jobID),
	})
}

func (h *FileHandler) cancelJob(c echo.Context) error {
	m := h.manager(c)
	jobID := c.Param("job_id")
	if err := m.CancelJob(c.Request().Context(), jobID); err != nil {
		return respondError(c, err)
	}
	job, _ := m.Job(jobID)
	return c.JSON(http.StatusOK, util.Envelope{
		"job_id": jobID,
		"job":    job,
	})
}
