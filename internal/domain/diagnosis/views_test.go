package diagnosis

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
)

func at(day int) *time.Time {
	t := time.Date(2024, 5, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func ids(ds []Diagnosis) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestDiagnosesView(t *testing.T) {
	all := []Diagnosis{
		{ID: 1, Title: "Bronchiolitis", Status: StatusActive, DateDiagnosed: at(3), ChildDetails: &ChildRef{FirstName: "Zara"}},
		{ID: 2, Title: "asthma", Status: StatusChronic, DateDiagnosed: at(1), ChildDetails: &ChildRef{FirstName: "Ada"}},
		{ID: 3, Title: "Conjunctivitis", Status: StatusActive, DateDiagnosed: at(2), ChildDetails: &ChildRef{FirstName: "Musa"}},
	}
	tests := []struct {
		name string
		q    listview.Query
		want []int64
	}{
		{"default newest first", listview.Query{Sort: DefaultSort}, []int64{1, 3, 2}},
		{"status all", listview.Query{Status: "all", Sort: DefaultSort}, []int64{1, 3, 2}},
		{"status filter", listview.Query{Status: StatusActive, Sort: DefaultSort}, []int64{1, 3}},
		{"title asc", listview.Query{Sort: listview.Sort{Field: "title", Direction: listview.Asc}}, []int64{2, 1, 3}},
		{"child desc", listview.Query{Sort: listview.Sort{Field: "child", Direction: listview.Desc}}, []int64{1, 3, 2}},
		{"unknown field falls back", listview.Query{Sort: listview.Sort{Field: "severity"}}, []int64{1, 3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DiagnosesView(all, tt.q, false)
			if diff := cmp.Diff(tt.want, ids(v.Items)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}

	v := DiagnosesView(all, listview.Query{Sort: listview.Sort{Field: "severity"}}, true)
	if v.Sort != DefaultSort || !v.Searching {
		t.Errorf("unexpected view state %+v", v)
	}
	want := map[string]int{StatusActive: 2, StatusChronic: 1}
	if diff := cmp.Diff(want, v.StatusCounts); diff != "" {
		t.Errorf("status counts mismatch (-want +got):\n%s", diff)
	}
}

func TestTreatmentsAndAttachmentsViews(t *testing.T) {
	treatments := []Treatment{
		{ID: 1, Diagnosis: 1, Title: "Salbutamol", Description: "as needed"},
		{ID: 2, Diagnosis: 2, Title: "Amoxicillin"},
	}
	if got := TreatmentsView(treatments, listview.Query{}, 2); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("unexpected treatments %+v", got)
	}
	if got := TreatmentsView(treatments, listview.Query{Search: "needed"}, 0); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("unexpected search result %+v", got)
	}

	attachments := []Attachment{
		{ID: 1, Diagnosis: 1, Title: "X-ray", UploadedAt: at(1)},
		{ID: 2, Diagnosis: 1, Title: "Labs", UploadedAt: at(4)},
		{ID: 3, Diagnosis: 2, Title: "Photo"},
	}
	got := AttachmentsView(attachments, listview.Query{}, 1)
	if len(got) != 2 || got[0].ID != 2 {
		t.Errorf("expected newest upload first, got %+v", got)
	}
}
