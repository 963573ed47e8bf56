package diagnosis

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/console"
	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/middleware"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	d := api.Group("/diagnoses")
	d.GET("", h.ListDiagnoses)
	d.POST("", h.CreateDiagnosis)
	d.GET("/search", h.SearchDiagnoses)
	d.GET("/overview", h.Overview)
	d.GET("/:id", h.GetDiagnosis)
	d.PATCH("/:id", console.Patch(h.svc.Diagnoses()))
	d.DELETE("/:id", console.Delete(h.svc.Diagnoses()))
	d.POST("/:id/:action", h.ChangeStatus)

	t := api.Group("/treatments")
	t.GET("", h.ListTreatments)
	t.POST("", h.CreateTreatment)
	t.GET("/:id", console.Get(h.svc.Treatments()))
	t.PATCH("/:id", console.Patch(h.svc.Treatments()))
	t.DELETE("/:id", console.Delete(h.svc.Treatments()))

	a := api.Group("/attachments")
	a.GET("", h.ListAttachments)
	a.POST("", h.UploadAttachment)
	a.GET("/:id", console.Get(h.svc.Attachments()))
	a.PATCH("/:id", console.Patch(h.svc.Attachments()))
	a.DELETE("/:id", console.Delete(h.svc.Attachments()))
}

// ListDiagnoses handles GET /diagnoses. A search term runs a backend search
// whose results become the list; status and sort apply on top.
func (h *Handler) ListDiagnoses(c echo.Context) error {
	q := console.Query(c, DefaultSort)
	ctx := c.Request().Context()

	var base []Diagnosis
	var err error
	if q.Search != "" {
		base, err = h.svc.Search(ctx, q.Search)
	} else {
		h.svc.ClearSearchResults()
		base, err = h.svc.Diagnoses().FetchAll(ctx)
	}
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusOK, DiagnosesView(base, q, q.Search != ""))
}

func (h *Handler) SearchDiagnoses(c echo.Context) error {
	found, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	d, err := h.svc.CreateDiagnosis(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	id, err := console.ParseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.Detail(c.Request().Context(), id)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusOK, NewDetail(*d, h.now()))
}

// ChangeStatus handles POST /diagnoses/:id/:action. The action may be a
// backend route (mark_resolved) or the target status (RESOLVED).
func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := console.ParseID(c, "id")
	if err != nil {
		return err
	}
	action := c.Param("action")
	if a, ok := ActionForStatus(action); ok {
		action = a
	}
	d, err := h.svc.ChangeStatus(c.Request().Context(), id, action)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type overview struct {
	Diagnoses    int            `json:"diagnoses"`
	StatusCounts map[string]int `json:"status_counts"`
	Treatments   int            `json:"treatments"`
	Attachments  int            `json:"attachments"`
}

func (h *Handler) Overview(c echo.Context) error {
	if err := h.svc.Overview(c.Request().Context()); err != nil {
		return middleware.HTTPError(err)
	}
	all := h.svc.Diagnoses().Snapshot().Items
	return c.JSON(http.StatusOK, overview{
		Diagnoses:    len(all),
		StatusCounts: listview.CountBy(all, func(d Diagnosis) string { return d.Status }),
		Treatments:   len(h.svc.Treatments().Snapshot().Items),
		Attachments:  len(h.svc.Attachments().Snapshot().Items),
	})
}

// -- Treatments --

func (h *Handler) ListTreatments(c echo.Context) error {
	diagnosisID, err := console.QueryInt(c, "diagnosis")
	if err != nil {
		return err
	}
	items, err := console.Items(c, h.svc.Treatments())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TreatmentsView(items, console.Query(c, listview.Sort{}), diagnosisID))
}

func (h *Handler) CreateTreatment(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CreateTreatment(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

// -- Attachments --

func (h *Handler) ListAttachments(c echo.Context) error {
	diagnosisID, err := console.QueryInt(c, "diagnosis")
	if err != nil {
		return err
	}
	items, err := console.Items(c, h.svc.Attachments())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AttachmentsView(items, console.Query(c, listview.Sort{}), diagnosisID))
}

// UploadAttachment handles the multipart POST /attachments with fields
// diagnosis, title, description and file.
func (h *Handler) UploadAttachment(c echo.Context) error {
	diagnosisID, _ := strconv.ParseInt(c.FormValue("diagnosis"), 10, 64)
	meta := AttachmentUpload{
		Diagnosis:   diagnosisID,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
	}
	fh, err := c.FormFile(attachmentField)
	if err != nil {
		_, err = h.svc.UploadAttachment(c.Request().Context(), meta, nil)
		return middleware.HTTPError(err)
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()
	meta.Filename = fh.Filename

	a, err := h.svc.UploadAttachment(c.Request().Context(), meta, f)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}
