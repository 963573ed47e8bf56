package scheduling

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/schedules")
	g.GET("", h.ListSchedules)
	g.GET("/tasks", h.ListTasks)
	g.GET("/:task", h.GetSchedule)
	g.POST("/:task", h.SetSchedule)
}

// ListSchedules is the scheduled-tasks dashboard: every task with its
// current configuration or fetch error.
func (h *Handler) ListSchedules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Overview(c.Request().Context()))
}

type taskInfo struct {
	Task
	Defaults Config `json:"defaults"`
}

func (h *Handler) ListTasks(c echo.Context) error {
	out := make([]taskInfo, len(Tasks))
	for i, t := range Tasks {
		out[i] = taskInfo{Task: t, Defaults: Defaults(t)}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	cfg, err := h.svc.Fetch(c.Request().Context(), c.Param("task"))
	if err != nil {
		return scheduleError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// SetSchedule posts a task's timing. Omitted fields take the task's
// defaults.
func (h *Handler) SetSchedule(c echo.Context) error {
	t, ok := Lookup(c.Param("task"))
	if !ok {
		return scheduleError(&UnknownTaskError{ID: c.Param("task")})
	}
	var in Input
	if err := (&echo.DefaultBinder{}).BindBody(c, &in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := h.svc.Create(c.Request().Context(), t.ID, in.Resolve(t))
	if err != nil {
		return scheduleError(err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

func scheduleError(err error) error {
	var unknown *UnknownTaskError
	if errors.As(err, &unknown) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return middleware.HTTPError(err)
}

