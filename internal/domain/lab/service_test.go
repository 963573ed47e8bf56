package lab

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

func newTestService(t *testing.T) (*Service, *fakeBackend) {
	t.Helper()
	fb, client := newFakeBackend(t)
	return NewRESTService(client), fb
}

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		payload  map[string]any
		wantErr  string
	}{
		{"complete test", ResourceTests, map[string]any{"code": "CBC", "name": "CBC", "sample_type": "BLOOD", "processing_time": 24}, ""},
		{"missing fields", ResourceTests, map[string]any{"code": "CBC"}, "name"},
		{"nil payload", ResourceRequests, nil, "requests data is required"},
		{"unknown resource", "widgets", map[string]any{}, "unknown lab resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreate(tt.resource, tt.payload)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	var fe apiclient.FieldErrors
	if err := ValidateCreate(ResourceParameters, map[string]any{"lab_result": 1}); !errors.As(err, &fe) {
		t.Errorf("expected FieldErrors, got %T", err)
	}
}

func TestService_CreateRejectsIncompletePayloadWithoutCalling(t *testing.T) {
	svc, fb := newTestService(t)
	if _, err := svc.CreateLabRequest(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(fb.calls) != 0 {
		t.Errorf("expected no backend calls, got %v", fb.calls)
	}
}

func TestService_CreateParameterCopiesRangeUnit(t *testing.T) {
	svc, fb := newTestService(t)
	fb.seed(PathReferenceRanges, map[string]any{"id": 3, "lab_test": 1, "parameter_name": "Hemoglobin", "unit": "g/dL", "gender": "ALL"})
	ctx := context.Background()
	if _, err := svc.Ranges().FetchAll(ctx); err != nil {
		t.Fatal(err)
	}

	p, err := svc.CreateLabResultParameter(ctx, map[string]any{
		"lab_result": 9, "parameter_name": "Hemoglobin", "value": "12.3", "reference_range": float64(3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Unit != "g/dL" {
		t.Errorf("expected unit copied from range, got %q", p.Unit)
	}
	if got := fb.lastBody(PathLabResultParameters)["unit"]; got != "g/dL" {
		t.Errorf("backend received unit %v", got)
	}

	p, err = svc.CreateLabResultParameter(ctx, map[string]any{
		"lab_result": 9, "parameter_name": "Hemoglobin", "value": "12.3", "reference_range": 3, "unit": "mmol/L",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Unit != "mmol/L" {
		t.Errorf("an explicit unit must win, got %q", p.Unit)
	}
}

func TestService_AddParametersStopsAtFirstFailure(t *testing.T) {
	svc, fb := newTestService(t)
	ctx := context.Background()

	created, err := svc.AddParameters(ctx, 5, []map[string]any{
		{"parameter_name": "Hemoglobin", "value": "12"},
		{"parameter_name": "WBC"},
		{"parameter_name": "Platelets", "value": "300"},
	})
	if err == nil || !strings.HasPrefix(err.Error(), "parameter 2:") {
		t.Fatalf("expected failure on parameter 2, got %v", err)
	}
	if len(created) != 1 || created[0].LabResult != 5 {
		t.Errorf("expected the first parameter to be kept, got %+v", created)
	}
	if n := len(fb.data[PathLabResultParameters]); n != 1 {
		t.Errorf("expected 1 parameter on the backend, got %d", n)
	}

	if _, err := svc.AddParameters(ctx, 0, nil); err == nil || err.Error() != "lab result ID is required" {
		t.Errorf("expected missing id error, got %v", err)
	}
}

func TestService_CreateLeavesCallerPayloadUntouched(t *testing.T) {
	svc, fb := newTestService(t)
	fb.seed(PathReferenceRanges, map[string]any{"id": 3, "lab_test": 1, "parameter_name": "Hemoglobin", "unit": "g/dL", "gender": "ALL"})
	ctx := context.Background()
	if _, err := svc.Ranges().FetchAll(ctx); err != nil {
		t.Fatal(err)
	}

	single := map[string]any{"lab_result": 9, "parameter_name": "Hemoglobin", "value": "12.3", "reference_range": 3}
	if _, err := svc.CreateLabResultParameter(ctx, single); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := single["unit"]; ok {
		t.Errorf("caller payload gained a unit: %v", single)
	}

	batch := []map[string]any{{"parameter_name": "Hemoglobin", "value": "12", "reference_range": 3}}
	if _, err := svc.AddParameters(ctx, 5, batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"parameter_name": "Hemoglobin", "value": "12", "reference_range": 3}, batch[0]); diff != "" {
		t.Errorf("caller payload changed (-want +got):\n%s", diff)
	}
	if got := fb.lastBody(PathLabResultParameters); got["lab_result"] != float64(5) || got["unit"] != "g/dL" {
		t.Errorf("backend received %v", got)
	}
}

func TestService_BulkUpload(t *testing.T) {
	svc, fb := newTestService(t)
	fb.bulk[PathLabTests] = BulkUploadResult{
		Created: 2,
		Errors:  []BulkRowError{{Row: 4, Errors: map[string]any{"code": "duplicate"}}},
		Message: "2 created, 1 failed",
	}
	ctx := context.Background()

	res, err := svc.BulkUploadLabTests(ctx, "tests.xlsx", strings.NewReader("xlsx-bytes"))
	if err != nil {
		t.Fatalf("a 207 partial import is not an error: %v", err)
	}
	if res.Created != 2 || len(res.Errors) != 1 || res.Errors[0].Row != 4 {
		t.Errorf("unexpected result %+v", res)
	}
	if fb.bulkHit[PathLabTests] != "tests.xlsx" {
		t.Errorf("backend saw filename %q", fb.bulkHit[PathLabTests])
	}
	if fb.called("GET " + PathLabTests) {
		t.Error("bulk upload must not refresh the list")
	}
	if got := svc.BulkUploadResults()[ResourceTests]; got.Created != 2 {
		t.Errorf("last result not kept: %+v", got)
	}

	if _, err := svc.BulkUploadReferenceRanges(ctx, "", nil); err == nil || err.Error() != "file is required" {
		t.Errorf("expected file is required, got %v", err)
	}

	svc.ClearBulkUploadResults()
	if len(svc.BulkUploadResults()) != 0 {
		t.Error("expected results cleared")
	}
}

func TestService_BulkUploadFailureLandsOnSlice(t *testing.T) {
	svc, fb := newTestService(t)
	fb.fail["POST "+PathReferenceRanges+"/bulk-upload"] = http.StatusBadRequest

	_, err := svc.BulkUploadReferenceRanges(context.Background(), "r.xlsx", strings.NewReader("x"))
	if apiclient.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected a 400 server error, got %v", err)
	}
	st := svc.Ranges().Snapshot()
	if st.Error == "" || st.Loading {
		t.Errorf("expected error state, got %+v", st)
	}
}

func TestService_ApplicableRanges(t *testing.T) {
	svc, fb := newTestService(t)
	fb.seed(PathReferenceRanges,
		map[string]any{"id": 1, "lab_test": 1, "parameter_name": "Hemoglobin", "gender": "ALL", "min_age_months": 0, "max_age_months": 216},
		map[string]any{"id": 2, "lab_test": 1, "parameter_name": "Hemoglobin", "gender": "F", "min_age_months": 12, "max_age_months": 60},
		map[string]any{"id": 3, "lab_test": 1, "parameter_name": "Hemoglobin", "gender": "M", "min_age_months": 12, "max_age_months": 60},
		map[string]any{"id": 4, "lab_test": 1, "parameter_name": "WBC", "gender": "ALL", "min_age_months": 0, "max_age_months": 216},
		map[string]any{"id": 5, "lab_test": 2, "parameter_name": "Hemoglobin", "gender": "ALL", "min_age_months": 0, "max_age_months": 216},
	)
	if _, err := svc.Ranges().FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := svc.ApplicableRanges(1, "Hemoglobin", 24, "F")
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Errorf("expected gender-specific range first, got %+v", got)
	}
	if got := svc.ApplicableRanges(1, "", 100, "M"); len(got) != 2 {
		t.Errorf("expected both ALL ranges of test 1, got %+v", got)
	}
}

func TestService_Dashboard(t *testing.T) {
	svc, fb := newTestService(t)
	fb.seed(PathLabTests, map[string]any{"id": 1, "code": "CBC", "name": "CBC", "is_active": true})
	fb.seed(PathLabRequests,
		map[string]any{"id": 1, "child": 1, "status": StatusOrdered},
		map[string]any{"id": 2, "child": 2, "status": StatusOrdered},
	)
	fb.seed(PathLabRequestItems, map[string]any{"id": 1, "is_completed": true})
	fb.seed(PathLabResultParameters, map[string]any{"id": 1, "status": ParamHigh})

	if err := svc.LoadDashboard(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := svc.Dashboard()
	if d.Tests.Total != 1 || d.Tests.Active != 1 {
		t.Errorf("unexpected test stats %+v", d.Tests)
	}
	if d.RequestStatusCounts[StatusOrdered] != 2 {
		t.Errorf("unexpected request counts %v", d.RequestStatusCounts)
	}
	if d.Items.Completed != 1 || d.ParameterStatusCounts[ParamHigh] != 1 {
		t.Errorf("unexpected dashboard %+v", d)
	}
}

func TestService_LoadDashboardReportsFailure(t *testing.T) {
	svc, fb := newTestService(t)
	fb.fail["GET "+PathLabResults] = http.StatusInternalServerError

	if err := svc.LoadDashboard(context.Background()); apiclient.StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if svc.Results().Snapshot().Error == "" {
		t.Error("the failing slice should carry the error")
	}
	if svc.Tests().Snapshot().Error != "" {
		t.Error("other slices should be unaffected")
	}
}

func TestService_ParameterTrendHTML(t *testing.T) {
	svc, fb := newTestService(t)
	fb.seed(PathReferenceRanges, map[string]any{"id": 3, "min_value": "11.0", "max_value": "15.0", "unit": "g/dL"})
	fb.seed(PathLabResults, map[string]any{"id": 10, "date_performed": "2024-03-05T09:00:00Z"})
	fb.seed(PathLabResultParameters, map[string]any{
		"id": 1, "lab_result": 10, "parameter_name": "Hemoglobin", "value": "12.5",
		"reference_range": 3, "child_details": map[string]any{"id": 7, "name": "Ada Obi"},
	})
	if err := svc.LoadTrendData(context.Background()); err != nil {
		t.Fatal(err)
	}

	html, err := svc.ParameterTrendHTML(7, "Hemoglobin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "Ref Max") || !strings.Contains(html, "2024-03-05") {
		t.Error("expected reference lines and the performed date in the chart")
	}

	if _, err := svc.ParameterTrendHTML(7, "WBC"); err == nil {
		t.Error("expected an error when no values are recorded")
	}
	if _, err := svc.ParameterTrendHTML(7, ""); err == nil {
		t.Error("expected parameter name to be required")
	}
}
