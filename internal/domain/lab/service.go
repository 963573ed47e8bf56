package lab

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// Resource names used for routing, CLI subcommands and audit entries.
const (
	ResourceTests      = "tests"
	ResourceRanges     = "ranges"
	ResourceRequests   = "requests"
	ResourceItems      = "items"
	ResourceResults    = "results"
	ResourceParameters = "parameters"
)

// requiredOnCreate mirrors the required inputs of each creation form.
var requiredOnCreate = map[string][]string{
	ResourceTests:      {"code", "name", "sample_type", "processing_time"},
	ResourceRanges:     {"lab_test", "parameter_name"},
	ResourceRequests:   {"child"},
	ResourceItems:      {"lab_request", "lab_test"},
	ResourceResults:    {"lab_request_item"},
	ResourceParameters: {"lab_result", "parameter_name", "value"},
}

type Service struct {
	testRepo  LabTestRepository
	rangeRepo ReferenceRangeRepository

	tests    *store.Slice[LabTest]
	ranges   *store.Slice[ReferenceRange]
	requests *store.Slice[LabRequest]
	items    *store.Slice[LabRequestItem]
	results  *store.Slice[LabResult]
	params   *store.Slice[LabResultParameter]

	mu   sync.Mutex
	bulk map[string]*BulkUploadResult
}

func NewService(t LabTestRepository, rr ReferenceRangeRepository, rq LabRequestRepository, it LabRequestItemRepository, rs LabResultRepository, p LabResultParameterRepository) *Service {
	return &Service{
		testRepo:  t,
		rangeRepo: rr,
		tests:     store.NewSlice[LabTest](t),
		ranges:    store.NewSlice[ReferenceRange](rr),
		requests:  store.NewSlice[LabRequest](rq),
		items:     store.NewSlice[LabRequestItem](it),
		results:   store.NewSlice[LabResult](rs),
		params:    store.NewSlice[LabResultParameter](p),
		bulk:      map[string]*BulkUploadResult{},
	}
}

// NewRESTService wires every repository to the backend client.
func NewRESTService(c *apiclient.Client) *Service {
	return NewService(
		NewLabTestRepoREST(c),
		NewReferenceRangeRepoREST(c),
		NewLabRequestRepoREST(c),
		NewLabRequestItemRepoREST(c),
		NewLabResultRepoREST(c),
		NewLabResultParameterRepoREST(c),
	)
}

func (s *Service) Tests() *store.Slice[LabTest]                 { return s.tests }
func (s *Service) Ranges() *store.Slice[ReferenceRange]         { return s.ranges }
func (s *Service) Requests() *store.Slice[LabRequest]           { return s.requests }
func (s *Service) Items() *store.Slice[LabRequestItem]          { return s.items }
func (s *Service) Results() *store.Slice[LabResult]             { return s.results }
func (s *Service) Parameters() *store.Slice[LabResultParameter] { return s.params }

// ValidateCreate runs the creation form's required-field check.
func ValidateCreate(resource string, payload map[string]any) error {
	fields, ok := requiredOnCreate[resource]
	if !ok {
		return fmt.Errorf("unknown lab resource %q", resource)
	}
	if payload == nil {
		return &apiclient.MissingArgumentError{Name: resource + " data"}
	}
	return apiclient.RequireFields(payload, fields...)
}

// -- Creation with form checks --

func (s *Service) CreateLabTest(ctx context.Context, payload map[string]any) (*LabTest, error) {
	if err := ValidateCreate(ResourceTests, payload); err != nil {
		return nil, err
	}
	return s.tests.Create(ctx, payload)
}

func (s *Service) CreateReferenceRange(ctx context.Context, payload map[string]any) (*ReferenceRange, error) {
	if err := ValidateCreate(ResourceRanges, payload); err != nil {
		return nil, err
	}
	return s.ranges.Create(ctx, payload)
}

func (s *Service) CreateLabRequest(ctx context.Context, payload map[string]any) (*LabRequest, error) {
	if err := ValidateCreate(ResourceRequests, payload); err != nil {
		return nil, err
	}
	return s.requests.Create(ctx, payload)
}

func (s *Service) CreateLabRequestItem(ctx context.Context, payload map[string]any) (*LabRequestItem, error) {
	if err := ValidateCreate(ResourceItems, payload); err != nil {
		return nil, err
	}
	return s.items.Create(ctx, payload)
}

func (s *Service) CreateLabResult(ctx context.Context, payload map[string]any) (*LabResult, error) {
	if err := ValidateCreate(ResourceResults, payload); err != nil {
		return nil, err
	}
	return s.results.Create(ctx, payload)
}

// CreateLabResultParameter fills the unit from the linked reference range
// when the caller left it blank. That copy is the only value derived
// locally; the backend assigns the status.
func (s *Service) CreateLabResultParameter(ctx context.Context, payload map[string]any) (*LabResultParameter, error) {
	if err := ValidateCreate(ResourceParameters, payload); err != nil {
		return nil, err
	}
	if unit, _ := payload["unit"].(string); unit == "" {
		if id, ok := asID(payload["reference_range"]); ok {
			if u := s.UnitForReferenceRange(id); u != "" {
				payload = maps.Clone(payload)
				payload["unit"] = u
			}
		}
	}
	return s.params.Create(ctx, payload)
}

// AddParameters creates a result's parameters one by one. The calls are
// independent: a failure stops the loop and leaves the result and any
// parameters already created in place.
func (s *Service) AddParameters(ctx context.Context, resultID int64, payloads []map[string]any) ([]LabResultParameter, error) {
	if resultID <= 0 {
		return nil, &apiclient.MissingArgumentError{Name: "lab result ID"}
	}
	created := make([]LabResultParameter, 0, len(payloads))
	for i, p := range payloads {
		p = maps.Clone(p)
		if p == nil {
			p = map[string]any{}
		}
		p["lab_result"] = resultID
		param, err := s.CreateLabResultParameter(ctx, p)
		if err != nil {
			return created, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		created = append(created, *param)
	}
	return created, nil
}

// -- Bulk uploads --

func (s *Service) BulkUploadLabTests(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error) {
	return bulkUpload(ctx, s, ResourceTests, s.tests, s.testRepo.BulkUpload, filename, file)
}

func (s *Service) BulkUploadReferenceRanges(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error) {
	return bulkUpload(ctx, s, ResourceRanges, s.ranges, s.rangeRepo.BulkUpload, filename, file)
}

type uploadFunc func(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error)

// bulkUpload runs the import under the target slice's loading and error
// state. The list is not refreshed; callers fetch again to see new rows.
func bulkUpload[T store.Entity](ctx context.Context, s *Service, resource string, sl *store.Slice[T], upload uploadFunc, filename string, file io.Reader) (*BulkUploadResult, error) {
	if file == nil {
		return nil, &apiclient.MissingArgumentError{Name: "file"}
	}
	if filename == "" {
		filename = resource + ".xlsx"
	}
	var res *BulkUploadResult
	err := sl.Run(ctx, func(ctx context.Context) error {
		var err error
		res, err = upload(ctx, filename, file)
		return err
	}, nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.bulk[resource] = res
	s.mu.Unlock()
	return res, nil
}

// BulkUploadResults returns the last import summary per resource.
func (s *Service) BulkUploadResults() map[string]BulkUploadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BulkUploadResult, len(s.bulk))
	for k, v := range s.bulk {
		out[k] = *v
	}
	return out
}

func (s *Service) ClearBulkUploadResults() {
	s.mu.Lock()
	s.bulk = map[string]*BulkUploadResult{}
	s.mu.Unlock()
}

// -- Reference range helpers --

// UnitForReferenceRange returns the unit of a loaded reference range, or ""
// when it is unknown.
func (s *Service) UnitForReferenceRange(id int64) string {
	for _, r := range s.ranges.Snapshot().Items {
		if r.ID == id {
			return r.Unit
		}
	}
	return ""
}

// ApplicableRanges lists the loaded ranges of a test parameter that cover a
// child, gender-specific ranges first. parameter may be empty to list all
// parameters of the test.
func (s *Service) ApplicableRanges(labTestID int64, parameter string, ageMonths int, gender string) []ReferenceRange {
	var specific, general []ReferenceRange
	for _, r := range s.ranges.Snapshot().Items {
		if r.LabTest != labTestID {
			continue
		}
		if parameter != "" && r.ParameterName != parameter {
			continue
		}
		if !r.Covers(ageMonths, gender) {
			continue
		}
		if r.Gender == GenderAll {
			general = append(general, r)
		} else {
			specific = append(specific, r)
		}
	}
	return slices.Concat(specific, general)
}

// -- Dashboard --

// LoadDashboard fetches every lab collection concurrently. Each failure
// lands on its own slice; the first error is returned.
func (s *Service) LoadDashboard(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { _, err := s.tests.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.ranges.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.requests.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.items.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.results.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.params.FetchAll(ctx); return err })
	return g.Wait()
}

// LoadTrendData refreshes the three slices the trend chart reads.
func (s *Service) LoadTrendData(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { _, err := s.params.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.results.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.ranges.FetchAll(ctx); return err })
	return g.Wait()
}

// Dashboard summarizes the loaded lab collections.
type Dashboard struct {
	Tests                 LabTestStats                `json:"tests"`
	Ranges                int                         `json:"reference_ranges"`
	RequestStatusCounts   map[string]int              `json:"request_status_counts"`
	Items                 ItemStats                   `json:"request_items"`
	Results               int                         `json:"results"`
	ParameterStatusCounts map[string]int              `json:"parameter_status_counts"`
	BulkUploads           map[string]BulkUploadResult `json:"bulk_uploads,omitempty"`
}

func (s *Service) Dashboard() Dashboard {
	var none listview.Query
	return Dashboard{
		Tests:                 LabTestsView(s.tests.Snapshot().Items, none).Stats,
		Ranges:                len(s.ranges.Snapshot().Items),
		RequestStatusCounts:   LabRequestsView(s.requests.Snapshot().Items, none).StatusCounts,
		Items:                 LabRequestItemsView(s.items.Snapshot().Items, none).Stats,
		Results:               len(s.results.Snapshot().Items),
		ParameterStatusCounts: ParametersView(s.params.Snapshot().Items, none).StatusCounts,
		BulkUploads:           s.BulkUploadResults(),
	}
}

func asID(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), x > 0
	case int64:
		return x, x > 0
	case float64:
		return int64(x), x > 0
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// ParameterTrendHTML charts one parameter for one child from the loaded
// parameter, result and range slices. The latest point's linked range
// supplies the reference lines.
func (s *Service) ParameterTrendHTML(childID int64, parameter string) (string, error) {
	if parameter == "" {
		return "", &apiclient.MissingArgumentError{Name: "parameter name"}
	}
	points := ParameterSeries(s.params.Snapshot().Items, s.results.Snapshot().Items, childID, parameter)
	var ref *ReferenceRange
	if len(points) > 0 {
		if id := points[len(points)-1].ReferenceRange; id != nil {
			for _, r := range s.ranges.Snapshot().Items {
				if r.ID == *id {
					ref = &r
					break
				}
			}
		}
	}
	return TrendChart(parameter, points, ref)
}
