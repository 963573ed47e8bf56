package lab

import (
	"strconv"
	"time"

	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/pkg/pagination"
)

func timeKey(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// -- Lab tests --

type LabTestStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Fasting  int `json:"requires_fasting"`
	Inactive int `json:"inactive"`
}

type LabTestView struct {
	Items      []LabTest    `json:"items"`
	Categories []string     `json:"categories"`
	Stats      LabTestStats `json:"stats"`
}

// LabTestsView filters by search (name, code, category) and category. Stats
// and the category list describe the full collection.
func LabTestsView(all []LabTest, q listview.Query) LabTestView {
	items := listview.Filter(all, q.Search,
		func(t LabTest) string { return t.Name },
		func(t LabTest) string { return t.Code },
		func(t LabTest) string { return t.Category },
	)
	items = listview.Equals(items, q.Category, func(t LabTest) string { return t.Category })

	active := listview.Count(all, func(t LabTest) bool { return t.IsActive })
	return LabTestView{
		Items:      items,
		Categories: listview.Distinct(all, func(t LabTest) string { return t.Category }),
		Stats: LabTestStats{
			Total:    len(all),
			Active:   active,
			Inactive: len(all) - active,
			Fasting:  listview.Count(all, func(t LabTest) bool { return t.RequiresFasting }),
		},
	}
}

// -- Reference ranges --

type ReferenceRangeView struct {
	Groups     []listview.NestedGroup[ReferenceRange] `json:"groups"`
	LabTests   []string                               `json:"lab_tests"`
	Total      int                                    `json:"total"`
	TotalPages int                                    `json:"total_pages"`
	Page       int                                    `json:"page"`
}

// ReferenceRangesView searches test label, parameter and code, filters by
// the selected lab test (q.Filter) and groups by "Name (CODE)" then
// parameter. Paging counts test groups, not rows.
func ReferenceRangesView(all []ReferenceRange, q listview.Query, p pagination.Params) ReferenceRangeView {
	labTest := func(r ReferenceRange) string {
		if r.LabTestDetails == nil {
			return ""
		}
		return r.LabTestDetails.LabTest
	}
	items := listview.Filter(all, q.Search,
		labTest,
		func(r ReferenceRange) string { return r.ParameterName },
		func(r ReferenceRange) string {
			if r.LabTestDetails == nil {
				return ""
			}
			return r.LabTestDetails.Code
		},
	)
	if q.Filter != "" {
		items = listview.Where(items, func(r ReferenceRange) bool { return labTest(r) == q.Filter })
	}
	groups := listview.GroupNested(items,
		func(r ReferenceRange) string { return r.TestLabel() },
		func(r ReferenceRange) string { return r.ParameterName },
		"Unknown",
	)
	return ReferenceRangeView{
		Groups:     pagination.Page(groups, p),
		LabTests:   listview.Distinct(all, labTest),
		Total:      len(groups),
		TotalPages: p.TotalPages(len(groups)),
		Page:       p.PageNumber(),
	}
}

// -- Lab requests --

var DefaultRequestSort = listview.Sort{Field: "date_requested", Direction: listview.Desc}

type LabRequestView struct {
	Items        []LabRequest   `json:"items"`
	StatusCounts map[string]int `json:"status_counts"`
	Sort         listview.Sort  `json:"sort"`
}

// LabRequestsView searches child, doctor and request id, filters by status
// and sorts by date_requested, priority or status.
func LabRequestsView(all []LabRequest, q listview.Query) LabRequestView {
	items := listview.Filter(all, q.Search,
		func(r LabRequest) string { return r.ChildDetails.FullName() },
		func(r LabRequest) string { return r.RequestedByDetails.FullName() },
		func(r LabRequest) string { return r.RequestID },
	)
	items = listview.Equals(items, q.Status, func(r LabRequest) string { return r.Status })

	var cmpFn func(a, b LabRequest) int
	switch q.Sort.Field {
	case "priority":
		cmpFn = listview.ByKey(func(r LabRequest) int { return priorityRank(r.Priority) })
	case "status":
		cmpFn = listview.ByString(func(r LabRequest) string { return r.Status })
	default:
		q.Sort.Field = DefaultRequestSort.Field
		cmpFn = listview.ByKey(func(r LabRequest) int64 { return timeKey(r.DateRequested) })
	}
	if q.Sort.Direction == "" {
		q.Sort.Direction = listview.Desc
	}
	return LabRequestView{
		Items:        listview.SortBy(items, cmpFn, q.Sort.Direction),
		StatusCounts: listview.CountBy(all, func(r LabRequest) string { return r.Status }),
		Sort:         q.Sort,
	}
}

// -- Request items --

type ItemStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

type LabRequestItemView struct {
	Items []LabRequestItem `json:"items"`
	Stats ItemStats        `json:"stats"`
}

// LabRequestItemsView searches test name, child and doctor. q.Status of
// "completed" or "pending" narrows by completion.
func LabRequestItemsView(all []LabRequestItem, q listview.Query) LabRequestItemView {
	items := listview.Filter(all, q.Search,
		func(i LabRequestItem) string {
			if i.LabTestDetails == nil {
				return ""
			}
			return i.LabTestDetails.Name
		},
		func(i LabRequestItem) string {
			if i.LabRequestDetails == nil {
				return ""
			}
			return i.LabRequestDetails.Child
		},
		func(i LabRequestItem) string {
			if i.LabRequestDetails == nil {
				return ""
			}
			return i.LabRequestDetails.Doctor
		},
	)
	switch q.Status {
	case "completed":
		items = listview.Where(items, func(i LabRequestItem) bool { return i.IsCompleted })
	case "pending":
		items = listview.Where(items, func(i LabRequestItem) bool { return !i.IsCompleted })
	}
	done := listview.Count(all, func(i LabRequestItem) bool { return i.IsCompleted })
	return LabRequestItemView{
		Items: items,
		Stats: ItemStats{Total: len(all), Completed: done, Pending: len(all) - done},
	}
}

// -- Results --

// LabResultsView searches test, child and doctor of the underlying item,
// newest first.
func LabResultsView(all []LabResult, q listview.Query) []LabResult {
	detail := func(f func(*ItemSummary) string) func(LabResult) string {
		return func(r LabResult) string {
			if r.LabRequestItemDetails == nil {
				return ""
			}
			return f(r.LabRequestItemDetails)
		}
	}
	items := listview.Filter(all, q.Search,
		detail(func(d *ItemSummary) string { return d.LabTest }),
		detail(func(d *ItemSummary) string { return d.Child }),
		detail(func(d *ItemSummary) string { return d.Doctor }),
	)
	dir := q.Sort.Direction
	if dir == "" {
		dir = listview.Desc
	}
	return listview.SortBy(items, listview.ByKey(func(r LabResult) int64 { return timeKey(r.DatePerformed) }), dir)
}

// -- Result parameters --

// Parameter grouping keys.
const (
	GroupNone      = "none"
	GroupChild     = "child"
	GroupDoctor    = "doctor"
	GroupLabTech   = "lab_tech"
	GroupParameter = "parameter"
	GroupStatus    = "status"
)

const allResultsLabel = "All Results"

type ParameterView struct {
	Groups       []listview.Group[LabResultParameter] `json:"groups"`
	Total        int                                  `json:"total"`
	StatusCounts map[string]int                       `json:"status_counts"`
	GroupBy      string                               `json:"group_by"`
}

func parameterGroupKey(groupBy string) func(LabResultParameter) string {
	switch groupBy {
	case GroupChild:
		return func(p LabResultParameter) string { return p.ChildDetails.String() }
	case GroupDoctor:
		return func(p LabResultParameter) string { return p.DoctorDetails.String() }
	case GroupLabTech:
		return func(p LabResultParameter) string { return p.LabTechDetails.String() }
	case GroupParameter:
		return func(p LabResultParameter) string { return p.ParameterName }
	case GroupStatus:
		return func(p LabResultParameter) string { return p.Status }
	}
	return nil
}

// ParametersView searches child, doctor, range parameter and status and
// buckets by q.Group. Without a grouping everything lands in one
// "All Results" bucket.
func ParametersView(all []LabResultParameter, q listview.Query) ParameterView {
	items := listview.Filter(all, q.Search,
		func(p LabResultParameter) string { return p.ChildDetails.String() },
		func(p LabResultParameter) string { return p.DoctorDetails.String() },
		func(p LabResultParameter) string {
			if p.ReferenceRangeDetails == nil {
				return ""
			}
			return p.ReferenceRangeDetails.ParameterName
		},
		func(p LabResultParameter) string { return p.Status },
	)
	groupBy := q.Group
	key := parameterGroupKey(groupBy)
	var groups []listview.Group[LabResultParameter]
	if key == nil {
		groupBy = GroupNone
		groups = []listview.Group[LabResultParameter]{{Key: allResultsLabel, Items: items}}
	} else {
		groups = listview.GroupBy(items, key, "Unknown")
	}
	return ParameterView{
		Groups:       groups,
		Total:        len(items),
		StatusCounts: listview.CountBy(all, func(p LabResultParameter) string { return p.Status }),
		GroupBy:      groupBy,
	}
}

// ParameterSeries is the history of one named parameter for one child,
// oldest first, as plotted by the trend chart.
func ParameterSeries(all []LabResultParameter, results []LabResult, childID int64, parameter string) []SeriesPoint {
	performed := make(map[int64]*time.Time, len(results))
	for _, r := range results {
		performed[r.ID] = r.DatePerformed
	}
	var pts []SeriesPoint
	for _, p := range all {
		if p.ParameterName != parameter {
			continue
		}
		if childID > 0 && (p.ChildDetails == nil || p.ChildDetails.ID != childID) {
			continue
		}
		v, ok := p.Value.Float()
		if !ok {
			continue
		}
		label := "#" + strconv.FormatInt(p.LabResult, 10)
		var at *time.Time
		if t := performed[p.LabResult]; t != nil {
			at = t
			label = t.Format("2006-01-02")
		}
		pts = append(pts, SeriesPoint{Label: label, At: at, Value: v, Unit: p.Unit, Status: p.Status, ReferenceRange: p.ReferenceRange})
	}
	return listview.SortBy(pts, listview.ByKey(func(p SeriesPoint) int64 { return timeKey(p.At) }), listview.Asc)
}

type SeriesPoint struct {
	Label          string     `json:"label"`
	At             *time.Time `json:"at,omitempty"`
	Value          float64    `json:"value"`
	Unit           string     `json:"unit,omitempty"`
	Status         string     `json:"status,omitempty"`
	ReferenceRange *int64     `json:"reference_range,omitempty"`
}
