package lab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lab request statuses. Transitions are enforced by the backend only.
const (
	StatusOrdered    = "ORDERED"
	StatusScheduled  = "SCHEDULED"
	StatusCollected  = "COLLECTED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusVerified   = "VERIFIED"
	StatusCancelled  = "CANCELLED"
	StatusRejected   = "REJECTED"
)

var RequestStatuses = []string{
	StatusOrdered, StatusScheduled, StatusCollected, StatusProcessing,
	StatusCompleted, StatusVerified, StatusCancelled, StatusRejected,
}

const (
	PriorityRoutine = "ROUTINE"
	PriorityUrgent  = "URGENT"
	PriorityStat    = "STAT"
)

var Priorities = []string{PriorityRoutine, PriorityUrgent, PriorityStat}

// priorityRank orders priorities for sorting, most urgent last.
func priorityRank(p string) int {
	switch p {
	case PriorityStat:
		return 3
	case PriorityUrgent:
		return 2
	case PriorityRoutine:
		return 1
	}
	return 0
}

var SampleTypes = []string{"BLOOD", "URINE", "STOOL", "CSF", "SWAB", "TISSUE", "SPUTUM", "OTHER"}

// Parameter statuses the backend is known to assign. They are shown as
// received; this list only drives badge colours.
const (
	ParamNormal       = "NORMAL"
	ParamHigh         = "HIGH"
	ParamLow          = "LOW"
	ParamCritical     = "CRITICAL"
	ParamAbnormal     = "ABNORMAL"
	ParamInconclusive = "INCONCLUSIVE"
)

const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderAll    = "ALL"
)

// Decimal holds a backend decimal as text. The backend may send either a
// JSON string ("12.500") or a number; nulls decode to the empty value.
type Decimal string

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decimal: %w", err)
	}
	*d = Decimal(n.String())
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// Float parses the value; ok is false when it is empty or not numeric.
func (d Decimal) Float() (float64, bool) {
	if d == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(d), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (d Decimal) String() string { return string(d) }

// FlexString accepts a JSON string or number, for fields like a child's age
// whose type differs between serializers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// LabTest is a catalogue entry.
type LabTest struct {
	ID                      int64      `json:"id"`
	Code                    string     `json:"code"`
	Name                    string     `json:"name"`
	Category                string     `json:"category,omitempty"`
	Description             string     `json:"description,omitempty"`
	SampleType              string     `json:"sample_type"`
	SampleVolumeRequired    string     `json:"sample_volume_required,omitempty"`
	PreparationInstructions string     `json:"preparation_instructions,omitempty"`
	CollectionInstructions  string     `json:"collection_instructions,omitempty"`
	ProcessingTime          int        `json:"processing_time"`
	Price                   Decimal    `json:"price"`
	IsActive                bool       `json:"is_active"`
	RequiresFasting         bool       `json:"requires_fasting"`
	SpecialInstructions     string     `json:"special_instructions,omitempty"`
	MinimumAgeMonths        *int       `json:"minimum_age_months"`
	MaximumAgeMonths        *int       `json:"maximum_age_months"`
	PediatricConsiderations string     `json:"pediatric_considerations,omitempty"`
	CreatedAt               *time.Time `json:"created_at,omitempty"`
	UpdatedAt               *time.Time `json:"updated_at,omitempty"`
}

func (t LabTest) EntityID() int64 { return t.ID }

// Label is "Name (CODE)", the form the backend uses in detail projections.
func (t LabTest) Label() string { return fmt.Sprintf("%s (%s)", t.Name, t.Code) }

type LabTestRef struct {
	LabTest string `json:"lab_test"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

// ReferenceRange is a normal-value band for one parameter of a test, scoped
// by age in months and gender.
type ReferenceRange struct {
	ID               int64       `json:"id"`
	LabTest          int64       `json:"lab_test"`
	ParameterName    string      `json:"parameter_name"`
	MinAgeMonths     int         `json:"min_age_months"`
	MaxAgeMonths     int         `json:"max_age_months"`
	Gender           string      `json:"gender"`
	MinValue         Decimal     `json:"min_value"`
	MaxValue         Decimal     `json:"max_value"`
	Unit             string      `json:"unit,omitempty"`
	TextualReference string      `json:"textual_reference,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	LabTestDetails   *LabTestRef `json:"lab_test_details,omitempty"`
}

func (r ReferenceRange) EntityID() int64 { return r.ID }

// TestLabel is the "Name (CODE)" group heading for this range.
func (r ReferenceRange) TestLabel() string {
	if r.LabTestDetails == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", r.LabTestDetails.Name, r.LabTestDetails.Code)
}

// Covers reports whether the range applies to a child of ageMonths and
// gender. A range for ALL covers every gender.
func (r ReferenceRange) Covers(ageMonths int, gender string) bool {
	if ageMonths < r.MinAgeMonths || ageMonths > r.MaxAgeMonths {
		return false
	}
	return r.Gender == GenderAll || gender == "" || strings.EqualFold(r.Gender, gender)
}

// Display renders the band the way the range list shows it.
func (r ReferenceRange) Display() string {
	if r.MinValue == "" && r.MaxValue == "" {
		return r.TextualReference
	}
	s := fmt.Sprintf("%s - %s", r.MinValue, r.MaxValue)
	if r.Unit != "" {
		s += " " + r.Unit
	}
	return s
}

type PersonRef struct {
	ID        int64      `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Age       FlexString `json:"age,omitempty"`
}

func (p *PersonRef) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NamedRef is the {id, name} projection used for staff and children on
// result parameters.
type NamedRef struct {
	ID   int64      `json:"id"`
	Name string     `json:"name"`
	Age  FlexString `json:"age,omitempty"`
}

func (n *NamedRef) String() string {
	if n == nil {
		return ""
	}
	return n.Name
}

// LabRequest is one lab order for a child.
type LabRequest struct {
	ID                   int64      `json:"id"`
	Child                int64      `json:"child"`
	RequestedBy          *int64     `json:"requested_by"`
	Diagnosis            *int64     `json:"diagnosis"`
	Status               string     `json:"status"`
	Priority             string     `json:"priority"`
	RequestID            string     `json:"request_id,omitempty"`
	DateRequested        *time.Time `json:"date_requested,omitempty"`
	ScheduledDate        *time.Time `json:"scheduled_date,omitempty"`
	SampleCollectionDate *time.Time `json:"sample_collection_date,omitempty"`
	SampleCollectedBy    *int64     `json:"sample_collected_by,omitempty"`
	ResultsDate          *time.Time `json:"results_date,omitempty"`
	VerifiedBy           *int64     `json:"verified_by,omitempty"`
	ClinicalNotes        string     `json:"clinical_notes,omitempty"`
	SpecialInstructions  string     `json:"special_instructions,omitempty"`
	RejectionReason      string     `json:"rejection_reason,omitempty"`
	IsFasting            bool       `json:"is_fasting"`
	IsBillable           bool       `json:"is_billable"`
	ChildDetails         *PersonRef `json:"child_details,omitempty"`
	RequestedByDetails   *PersonRef `json:"requested_by_details,omitempty"`
}

func (r LabRequest) EntityID() int64 { return r.ID }

type LabTestSummary struct {
	ID                   int64  `json:"id"`
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	SampleType           string `json:"sample_type"`
	SampleVolumeRequired string `json:"sample_volume_required,omitempty"`
}

// RequestSummary is the lab_request_details projection; ID carries the
// human request id, not the numeric key.
type RequestSummary struct {
	ID            string     `json:"id"`
	Doctor        string     `json:"doctor"`
	Child         string     `json:"child"`
	DateRequested *time.Time `json:"date_requested,omitempty"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
}

// LabRequestItem is one ordered test within a request.
type LabRequestItem struct {
	ID                int64           `json:"id"`
	LabRequest        int64           `json:"lab_request"`
	LabTest           int64           `json:"lab_test"`
	Notes             string          `json:"notes,omitempty"`
	IsCompleted       bool            `json:"is_completed"`
	LabTestDetails    *LabTestSummary `json:"lab_test_details,omitempty"`
	LabRequestDetails *RequestSummary `json:"lab_request_details,omitempty"`
	ChildDetails      *PersonRef      `json:"child_details,omitempty"`
}

func (i LabRequestItem) EntityID() int64 { return i.ID }

type ItemSummary struct {
	ID            int64      `json:"id"`
	LabTest       string     `json:"lab_test"`
	Child         string     `json:"child"`
	Doctor        string     `json:"doctor"`
	DateRequested *time.Time `json:"date_requested,omitempty"`
}

// LabResult is the report produced for one request item.
type LabResult struct {
	ID                    int64        `json:"id"`
	LabRequestItem        int64        `json:"lab_request_item"`
	PerformedBy           *int64       `json:"performed_by"`
	VerifiedBy            *int64       `json:"verified_by"`
	DatePerformed         *time.Time   `json:"date_performed,omitempty"`
	DateVerified          *time.Time   `json:"date_verified,omitempty"`
	ReportNotes           string       `json:"report_notes,omitempty"`
	InternalNotes         string       `json:"internal_notes,omitempty"`
	LabRequestItemDetails *ItemSummary `json:"lab_request_item_details,omitempty"`
	PerformedByDetails    *NamedRef    `json:"performed_by_details,omitempty"`
}

func (r LabResult) EntityID() int64 { return r.ID }

type RangeSummary struct {
	ID            int64  `json:"id"`
	ParameterName string `json:"parameter_name"`
	Range         string `json:"range"`
	NormalRange   string `json:"normal_range"`
}

type ResultRef struct {
	ID int64 `json:"id"`
}

// LabResultParameter is one measured value within a result.
type LabResultParameter struct {
	ID                    int64         `json:"id"`
	LabResult             int64         `json:"lab_result"`
	ParameterName         string        `json:"parameter_name"`
	Value                 Decimal       `json:"value"`
	Unit                  string        `json:"unit,omitempty"`
	ReferenceRange        *int64        `json:"reference_range"`
	Status                string        `json:"status,omitempty"`
	Notes                 string        `json:"notes,omitempty"`
	LabTechDetails        *NamedRef     `json:"lab_tech_details,omitempty"`
	DoctorDetails         *NamedRef     `json:"doctor_details,omitempty"`
	ChildDetails          *NamedRef     `json:"child_details,omitempty"`
	LabResultDetails      *ResultRef    `json:"lab_result_details,omitempty"`
	ReferenceRangeDetails *RangeSummary `json:"reference_range_details,omitempty"`
}

func (p LabResultParameter) EntityID() int64 { return p.ID }

// BulkRowError is one rejected spreadsheet row.
type BulkRowError struct {
	Row         int               `json:"row"`
	Errors      map[string]any    `json:"errors"`
	DataPreview map[string]string `json:"data_preview,omitempty"`
	RawData     map[string]string `json:"raw_data,omitempty"`
}

// BulkUploadResult is the backend's summary of a spreadsheet import. A
// partial import comes back as 207 and is not an error.
type BulkUploadResult struct {
	Created int            `json:"created"`
	Errors  []BulkRowError `json:"errors"`
	Message string         `json:"message"`
}
