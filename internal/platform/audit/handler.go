package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit", h.List)
}

// List handles GET /audit?user_id=&resource=&outcome=&since=&limit=.
func (h *Handler) List(c echo.Context) error {
	f := Filter{
		UserID:   c.QueryParam("user_id"),
		Resource: c.QueryParam("resource"),
		Outcome:  Outcome(c.QueryParam("outcome")),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		f.Limit = n
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		f.Since = t
	}
	if f.Outcome != "" && f.Outcome != OutcomeSuccess && f.Outcome != OutcomeFailure {
		return echo.NewHTTPError(http.StatusBadRequest, "outcome must be success or failure")
	}

	entries, err := h.store.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}
