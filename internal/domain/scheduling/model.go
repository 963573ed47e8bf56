package scheduling

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// Kind is how a task's timing is described to the external scheduler.
type Kind string

const (
	// KindInterval runs every N periods.
	KindInterval Kind = "interval"
	// KindClocked runs once a day at hour:minute.
	KindClocked Kind = "clocked"
)

const (
	PeriodSeconds = "seconds"
	PeriodMinutes = "minutes"
	PeriodHours   = "hours"
	PeriodDays    = "days"
)

var (
	allPeriods = []string{PeriodSeconds, PeriodMinutes, PeriodHours, PeriodDays}
	dayPeriods = []string{PeriodDays}
)

// Task ids.
const (
	TaskAdmission                  = "admission"
	TaskAppointment                = "appointment"
	TaskVaccination                = "vaccination"
	TaskParentVaccinationReminder  = "parentVaccinationReminder"
	TaskMedicalVaccinationReminder = "medicalVaccinationReminder"
	TaskDoctorAppointmentReminder  = "doctorAppointmentReminder"
)

// Task is one externally scheduled job whose timing this service edits.
type Task struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Kind     Kind     `json:"kind"`
	Periods  []string `json:"periods,omitempty"`
}

// Tasks lists every configurable task in display order.
var Tasks = []Task{
	{ID: TaskAdmission, Name: "Admission Report Schedule", Endpoint: "schedule-admission-report", Kind: KindInterval, Periods: allPeriods},
	{ID: TaskAppointment, Name: "Appointment Reminder Schedule", Endpoint: "appointment/set-reminder", Kind: KindInterval, Periods: dayPeriods},
	{ID: TaskVaccination, Name: "Vaccination Report Schedule", Endpoint: "schedule-vaccination-report", Kind: KindInterval, Periods: dayPeriods},
	{ID: TaskParentVaccinationReminder, Name: "Parent Vaccination Reminder Schedule", Endpoint: "parent/set-vaccination-reminder", Kind: KindInterval, Periods: allPeriods},
	{ID: TaskMedicalVaccinationReminder, Name: "Medical Vaccination Reminder Schedule", Endpoint: "medical/set-vaccination-reminder", Kind: KindInterval, Periods: allPeriods},
	{ID: TaskDoctorAppointmentReminder, Name: "Doctor Appointment Reminder Schedule", Endpoint: "doctor/set-appointment-reminder", Kind: KindClocked},
}

// Lookup finds a task by id.
func Lookup(id string) (Task, bool) {
	for _, t := range Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// DefaultPeriod is days for day-only tasks and minutes otherwise.
func (t Task) DefaultPeriod() string {
	if len(t.Periods) == 1 {
		return t.Periods[0]
	}
	return PeriodMinutes
}

// Config is the timing of one task as sent to and returned by the
// scheduler. Interval tasks use Every and Period; clocked tasks use Hour
// and Minute.
type Config struct {
	Every   int    `json:"every,omitempty"`
	Period  string `json:"period,omitempty"`
	Hour    *int   `json:"hour,omitempty"`
	Minute  *int   `json:"minute,omitempty"`
	Enabled bool   `json:"enabled"`
	// Message is the scheduler's acknowledgement of the last save.
	Message string `json:"message,omitempty"`
}

// Input is a partially filled Config; absent fields take the task's
// defaults.
type Input struct {
	Every   *int    `json:"every"`
	Period  *string `json:"period"`
	Hour    *int    `json:"hour"`
	Minute  *int    `json:"minute"`
	Enabled *bool   `json:"enabled"`
}

// Defaults is the form's initial state for a task.
func Defaults(t Task) Config {
	if t.Kind == KindClocked {
		zero := 0
		hour, minute := zero, zero
		return Config{Hour: &hour, Minute: &minute, Enabled: true}
	}
	return Config{Every: 1, Period: t.DefaultPeriod(), Enabled: true}
}

// Resolve fills the task's defaults into in and drops the fields the task's
// kind does not use.
func (in Input) Resolve(t Task) Config {
	cfg := Defaults(t)
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	if t.Kind == KindClocked {
		if in.Hour != nil {
			h := *in.Hour
			cfg.Hour = &h
		}
		if in.Minute != nil {
			m := *in.Minute
			cfg.Minute = &m
		}
		return cfg
	}
	if in.Every != nil {
		cfg.Every = *in.Every
	}
	if in.Period != nil && strings.TrimSpace(*in.Period) != "" {
		cfg.Period = strings.ToLower(strings.TrimSpace(*in.Period))
	}
	return cfg
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Normalize clamps hour into 0-23 and minute into 0-59, as the form inputs
// do, and fills a missing hour or minute with 0.
func (c Config) Normalize(t Task) Config {
	if t.Kind != KindClocked {
		c.Hour, c.Minute = nil, nil
		return c
	}
	h, m := 0, 0
	if c.Hour != nil {
		h = clamp(*c.Hour, 0, 23)
	}
	if c.Minute != nil {
		m = clamp(*c.Minute, 0, 59)
	}
	c.Hour, c.Minute = &h, &m
	c.Every, c.Period = 0, ""
	return c
}

// Validate applies the form-level checks: every >= 1 and a period the task
// allows. Clocked configs are always valid once normalized.
func (c Config) Validate(t Task) error {
	if t.Kind == KindClocked {
		return nil
	}
	errs := apiclient.FieldErrors{}
	if c.Every < 1 {
		errs["every"] = "must be at least 1"
	}
	if !slices.Contains(t.Periods, c.Period) {
		errs["period"] = fmt.Sprintf("must be one of %s", strings.Join(t.Periods, ", "))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Payload is the request body for the task's endpoint.
func (c Config) Payload(t Task) map[string]any {
	if t.Kind == KindClocked {
		c = c.Normalize(t)
		return map[string]any{"hour": *c.Hour, "minute": *c.Minute, "enabled": c.Enabled}
	}
	return map[string]any{"every": c.Every, "period": c.Period, "enabled": c.Enabled}
}

// Describe renders the timing for lists, e.g. "every 2 hours" or
// "daily at 07:30".
func (c Config) Describe(t Task) string {
	state := ""
	if !c.Enabled {
		state = " (disabled)"
	}
	if t.Kind == KindClocked {
		c = c.Normalize(t)
		return fmt.Sprintf("daily at %02d:%02d%s", *c.Hour, *c.Minute, state)
	}
	unit := c.Period
	if c.Every == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("every %d %s%s", c.Every, unit, state)
}
