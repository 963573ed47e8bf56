package diagnosis

import (
	"time"

	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
)

var DefaultSort = listview.Sort{Field: "date_diagnosed", Direction: listview.Desc}

type DiagnosisView struct {
	Items        []Diagnosis    `json:"items"`
	StatusCounts map[string]int `json:"status_counts"`
	Sort         listview.Sort  `json:"sort"`
	Searching    bool           `json:"searching"`
}

func diagnosedAt(d Diagnosis) int64 {
	if d.DateDiagnosed == nil {
		return 0
	}
	return d.DateDiagnosed.UnixNano()
}

// DiagnosesView filters base by status ("all" keeps everything) and sorts
// by date_diagnosed, title or child name. base is either the full list or
// the current search results.
func DiagnosesView(base []Diagnosis, q listview.Query, searching bool) DiagnosisView {
	items := listview.Equals(base, q.Status, func(d Diagnosis) string { return d.Status })

	var cmpFn func(a, b Diagnosis) int
	switch q.Sort.Field {
	case "title":
		cmpFn = listview.ByString(func(d Diagnosis) string { return d.Title })
	case "child":
		cmpFn = listview.ByString(func(d Diagnosis) string { return d.ChildDetails.FullName() })
	default:
		q.Sort.Field = DefaultSort.Field
		cmpFn = listview.ByKey(diagnosedAt)
	}
	if q.Sort.Direction == "" {
		q.Sort.Direction = listview.Desc
	}
	return DiagnosisView{
		Items:        listview.SortBy(items, cmpFn, q.Sort.Direction),
		StatusCounts: listview.CountBy(base, func(d Diagnosis) string { return d.Status }),
		Sort:         q.Sort,
		Searching:    searching,
	}
}

// TreatmentsView narrows to one diagnosis when diagnosisID is set and
// searches title and description.
func TreatmentsView(all []Treatment, q listview.Query, diagnosisID int64) []Treatment {
	items := listview.Filter(all, q.Search,
		func(t Treatment) string { return t.Title },
		func(t Treatment) string { return t.Description },
	)
	if diagnosisID > 0 {
		items = listview.Where(items, func(t Treatment) bool { return t.Diagnosis == diagnosisID })
	}
	return items
}

// AttachmentsView narrows to one diagnosis and searches title and
// description, newest upload first.
func AttachmentsView(all []Attachment, q listview.Query, diagnosisID int64) []Attachment {
	items := listview.Filter(all, q.Search,
		func(a Attachment) string { return a.Title },
		func(a Attachment) string { return a.Description },
	)
	if diagnosisID > 0 {
		items = listview.Where(items, func(a Attachment) bool { return a.Diagnosis == diagnosisID })
	}
	return listview.SortBy(items, listview.ByKey(func(a Attachment) int64 {
		if a.UploadedAt == nil {
			return 0
		}
		return a.UploadedAt.UnixNano()
	}), listview.Desc)
}

// Detail is a diagnosis with its computed duration.
type Detail struct {
	Diagnosis
	DurationDays *int `json:"duration_days,omitempty"`
}

func NewDetail(d Diagnosis, now time.Time) Detail {
	out := Detail{Diagnosis: d}
	if days, ok := d.DurationDays(now); ok {
		out.DurationDays = &days
	}
	return out
}
