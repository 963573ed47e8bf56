package lab

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/console"
	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/middleware"
	"github.com/pedsclinic/clinicadmin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/lab")
	g.GET("/dashboard", h.GetDashboard)

	g.GET("/tests", h.ListLabTests)
	g.POST("/tests", h.CreateLabTest)
	g.POST("/tests/bulk-upload", h.BulkUploadLabTests)
	g.GET("/tests/:id", console.Get(h.svc.Tests()))
	g.PATCH("/tests/:id", console.Patch(h.svc.Tests()))
	g.DELETE("/tests/:id", console.Delete(h.svc.Tests()))

	g.GET("/ranges", h.ListReferenceRanges)
	g.POST("/ranges", h.CreateReferenceRange)
	g.POST("/ranges/bulk-upload", h.BulkUploadReferenceRanges)
	g.GET("/ranges/applicable", h.ApplicableRanges)
	g.GET("/ranges/:id", console.Get(h.svc.Ranges()))
	g.PATCH("/ranges/:id", console.Patch(h.svc.Ranges()))
	g.DELETE("/ranges/:id", console.Delete(h.svc.Ranges()))

	g.GET("/requests", h.ListLabRequests)
	g.POST("/requests", h.CreateLabRequest)
	g.GET("/requests/:id", console.Get(h.svc.Requests()))
	g.PATCH("/requests/:id", console.Patch(h.svc.Requests()))
	g.DELETE("/requests/:id", console.Delete(h.svc.Requests()))

	g.GET("/items", h.ListLabRequestItems)
	g.POST("/items", h.CreateLabRequestItem)
	g.GET("/items/:id", console.Get(h.svc.Items()))
	g.PATCH("/items/:id", console.Patch(h.svc.Items()))
	g.DELETE("/items/:id", console.Delete(h.svc.Items()))

	g.GET("/results", h.ListLabResults)
	g.POST("/results", h.CreateLabResult)
	g.POST("/results/:id/parameters", h.AddParameters)
	g.GET("/results/:id", console.Get(h.svc.Results()))
	g.PATCH("/results/:id", console.Patch(h.svc.Results()))
	g.DELETE("/results/:id", console.Delete(h.svc.Results()))

	g.GET("/parameters", h.ListParameters)
	g.POST("/parameters", h.CreateParameter)
	g.GET("/parameters/chart", h.ParameterChart)
	g.GET("/parameters/:id", console.Get(h.svc.Parameters()))
	g.PATCH("/parameters/:id", console.Patch(h.svc.Parameters()))
	g.DELETE("/parameters/:id", console.Delete(h.svc.Parameters()))
}

func (h *Handler) GetDashboard(c echo.Context) error {
	if err := h.svc.LoadDashboard(c.Request().Context()); err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusOK, h.svc.Dashboard())
}

// -- Lab tests --

func (h *Handler) ListLabTests(c echo.Context) error {
	items, err := console.Items(c, h.svc.Tests())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LabTestsView(items, console.Query(c, listview.Sort{})))
}

func (h *Handler) CreateLabTest(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CreateLabTest(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

// BulkUploadLabTests forwards a multipart "file" to the backend importer.
// A partial import answers 207 like the backend does.
func (h *Handler) BulkUploadLabTests(c echo.Context) error {
	return h.bulkUpload(c, h.svc.BulkUploadLabTests)
}

func (h *Handler) bulkUpload(c echo.Context, upload uploadFunc) error {
	fh, err := c.FormFile(bulkUploadFileFormField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	res, err := upload(c.Request().Context(), fh.Filename, f)
	if err != nil {
		return middleware.HTTPError(err)
	}
	status := http.StatusCreated
	if len(res.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, res)
}

// -- Reference ranges --

func (h *Handler) ListReferenceRanges(c echo.Context) error {
	items, err := console.Items(c, h.svc.Ranges())
	if err != nil {
		return err
	}
	view := ReferenceRangesView(items, console.Query(c, listview.Sort{}), pagination.FromContext(c))
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) CreateReferenceRange(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CreateReferenceRange(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) BulkUploadReferenceRanges(c echo.Context) error {
	return h.bulkUpload(c, h.svc.BulkUploadReferenceRanges)
}

// ApplicableRanges handles GET /lab/ranges/applicable?lab_test=&parameter=&age_months=&gender=.
func (h *Handler) ApplicableRanges(c echo.Context) error {
	labTest, err := console.QueryInt(c, "lab_test")
	if err != nil {
		return err
	}
	if labTest <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "lab_test is required")
	}
	age, err := console.QueryInt(c, "age_months")
	if err != nil {
		return err
	}
	if _, err := console.Items(c, h.svc.Ranges()); err != nil {
		return err
	}
	ranges := h.svc.ApplicableRanges(labTest, c.QueryParam("parameter"), int(age), c.QueryParam("gender"))
	if ranges == nil {
		ranges = []ReferenceRange{}
	}
	return c.JSON(http.StatusOK, ranges)
}

// -- Lab requests --

func (h *Handler) ListLabRequests(c echo.Context) error {
	items, err := console.Items(c, h.svc.Requests())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LabRequestsView(items, console.Query(c, DefaultRequestSort)))
}

func (h *Handler) CreateLabRequest(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CreateLabRequest(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// -- Request items --

func (h *Handler) ListLabRequestItems(c echo.Context) error {
	items, err := console.Items(c, h.svc.Items())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LabRequestItemsView(items, console.Query(c, listview.Sort{})))
}

func (h *Handler) CreateLabRequestItem(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	it, err := h.svc.CreateLabRequestItem(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, it)
}

// -- Results --

func (h *Handler) ListLabResults(c echo.Context) error {
	items, err := console.Items(c, h.svc.Results())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LabResultsView(items, console.Query(c, listview.Sort{})))
}

func (h *Handler) CreateLabResult(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CreateLabResult(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// AddParameters handles POST /lab/results/:id/parameters with a JSON array
// of parameter payloads. On failure the parameters created so far are
// reported next to the error; nothing is rolled back.
func (h *Handler) AddParameters(c echo.Context) error {
	id, err := console.ParseID(c, "id")
	if err != nil {
		return err
	}
	var payloads []map[string]any
	if err := (&echo.DefaultBinder{}).BindBody(c, &payloads); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected a JSON array of parameters")
	}
	if len(payloads) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one parameter is required")
	}
	if err := h.ensureRanges(c, payloads...); err != nil {
		return err
	}
	created, err := h.svc.AddParameters(c.Request().Context(), id, payloads)
	if err != nil {
		he := middleware.HTTPError(err).(*echo.HTTPError)
		return c.JSON(he.Code, map[string]any{
			"error":   he.Message,
			"created": created,
		})
	}
	return c.JSON(http.StatusCreated, created)
}

// -- Result parameters --

func (h *Handler) ListParameters(c echo.Context) error {
	items, err := console.Items(c, h.svc.Parameters())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ParametersView(items, console.Query(c, listview.Sort{})))
}

func (h *Handler) CreateParameter(c echo.Context) error {
	payload, err := console.Payload(c)
	if err != nil {
		return err
	}
	if err := h.ensureRanges(c, payload); err != nil {
		return err
	}
	p, err := h.svc.CreateLabResultParameter(c.Request().Context(), payload)
	if err != nil {
		return middleware.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ParameterChart handles GET /lab/parameters/chart?parameter=&child= and
// answers with a standalone HTML page.
func (h *Handler) ParameterChart(c echo.Context) error {
	child, err := console.QueryInt(c, "child")
	if err != nil {
		return err
	}
	parameter := c.QueryParam("parameter")
	if parameter == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "parameter is required")
	}
	if err := h.svc.LoadTrendData(c.Request().Context()); err != nil {
		return middleware.HTTPError(err)
	}
	html, err := h.svc.ParameterTrendHTML(child, parameter)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.HTML(http.StatusOK, html)
}

// ensureRanges loads the reference ranges when a payload links a range but
// carries no unit, so CreateLabResultParameter can copy the range's unit.
func (h *Handler) ensureRanges(c echo.Context, payloads ...map[string]any) error {
	for _, p := range payloads {
		unit, _ := p["unit"].(string)
		if _, linked := asID(p["reference_range"]); linked && unit == "" {
			_, err := console.Items(c, h.svc.Ranges())
			return err
		}
	}
	return nil
}
