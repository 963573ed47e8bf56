package diagnosis

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusActive      = "ACTIVE"
	StatusResolved    = "RESOLVED"
	StatusChronic     = "CHRONIC"
	StatusRecurrent   = "RECURRENT"
	StatusProvisional = "PROVISIONAL"
	StatusRuleOut     = "RULE_OUT"
)

var Statuses = []string{
	StatusActive, StatusResolved, StatusChronic,
	StatusRecurrent, StatusProvisional, StatusRuleOut,
}

const (
	SeverityMild     = "MILD"
	SeverityModerate = "MODERATE"
	SeveritySevere   = "SEVERE"
	SeverityCritical = "CRITICAL"
)

var Severities = []string{SeverityMild, SeverityModerate, SeveritySevere, SeverityCritical}

// Status actions are detail routes on the backend; each one moves the
// diagnosis to the matching status.
const (
	ActionMarkResolved    = "mark_resolved"
	ActionMarkChronic     = "mark_chronic"
	ActionMarkActive      = "mark_active"
	ActionMarkRecurrent   = "mark_recurrent"
	ActionMarkProvisional = "mark_provisional"
	ActionMarkRuleOut     = "mark_rule_out"
)

var statusActions = map[string]string{
	StatusResolved:    ActionMarkResolved,
	StatusChronic:     ActionMarkChronic,
	StatusActive:      ActionMarkActive,
	StatusRecurrent:   ActionMarkRecurrent,
	StatusProvisional: ActionMarkProvisional,
	StatusRuleOut:     ActionMarkRuleOut,
}

// ActionForStatus maps a target status ("RESOLVED" or "resolved") to its
// backend action.
func ActionForStatus(status string) (string, bool) {
	a, ok := statusActions[strings.ToUpper(strings.TrimSpace(status))]
	return a, ok
}

// IsStatusAction reports whether action is one of the mark_* routes.
func IsStatusAction(action string) bool {
	for _, a := range statusActions {
		if a == action {
			return true
		}
	}
	return false
}

type ChildRef struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Age         any    `json:"age,omitempty"`
}

func (c *ChildRef) FullName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type DoctorRef struct {
	ID             int64  `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (d *DoctorRef) FullName() string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

type UploaderRef struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Diagnosis is a clinical finding for a child. Treatments and Attachments
// are read-only projections filled by the backend.
type Diagnosis struct {
	ID               int64        `json:"id"`
	Appointment      *int64       `json:"appointment"`
	Child            int64        `json:"child"`
	ChildDetails     *ChildRef    `json:"child_details,omitempty"`
	Doctor           *int64       `json:"doctor"`
	DoctorDetails    *DoctorRef   `json:"doctor_details,omitempty"`
	Category         string       `json:"category,omitempty"`
	ICDCode          string       `json:"icd_code,omitempty"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Status           string       `json:"status"`
	Severity         string       `json:"severity,omitempty"`
	OnsetDate        string       `json:"onset_date,omitempty"`
	DateDiagnosed    *time.Time   `json:"date_diagnosed,omitempty"`
	ResolutionDate   string       `json:"resolution_date,omitempty"`
	IsChronic        bool         `json:"is_chronic"`
	IsCongenital     bool         `json:"is_congenital"`
	ClinicalFindings string       `json:"clinical_findings,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	RelatedDiagnoses []int64      `json:"related_diagnoses,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	Treatments       []Treatment  `json:"treatments,omitempty"`
}

func (d Diagnosis) EntityID() int64 { return d.ID }

func (d Diagnosis) String() string {
	if d.DateDiagnosed == nil {
		return d.Title
	}
	return fmt.Sprintf("%s - (%s)", d.Title, d.DateDiagnosed.Format("2006-01-02"))
}

const dateLayout = "2006-01-02"

// DurationDays counts days from onset to resolution, or to now while the
// diagnosis is unresolved. ok is false when the onset date is missing or
// unparseable.
func (d Diagnosis) DurationDays(now time.Time) (days int, ok bool) {
	onset, err := parseDate(d.OnsetDate)
	if err != nil {
		return 0, false
	}
	end := now
	if d.ResolutionDate != "" {
		if end, err = parseDate(d.ResolutionDate); err != nil {
			return 0, false
		}
	}
	y, m, dd := end.Date()
	end = time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(onset).Hours() / 24), true
}

// parseDate accepts a plain date or a timestamp and truncates to the day.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(s) > len(dateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
		s = t.Format(dateLayout)
	}
	return time.Parse(dateLayout, s)
}

type Treatment struct {
	ID          int64      `json:"id"`
	Diagnosis   int64      `json:"diagnosis"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (t Treatment) EntityID() int64 { return t.ID }

// Attachment is a file stored by the backend against a diagnosis. File is
// the URL the backend serves it from.
type Attachment struct {
	ID                int64        `json:"id"`
	Diagnosis         int64        `json:"diagnosis"`
	File              string       `json:"file"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	UploadedAt        *time.Time   `json:"uploaded_at,omitempty"`
	UploadedBy        *int64       `json:"uploaded_by"`
	UploadedByDetails *UploaderRef `json:"uploaded_by_details,omitempty"`
}

func (a Attachment) EntityID() int64 { return a.ID }

// AttachmentUpload is the multipart form for a new attachment.
type AttachmentUpload struct {
	Diagnosis   int64
	Title       string
	Description string
	Filename    string
}
