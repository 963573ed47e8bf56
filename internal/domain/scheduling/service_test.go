package scheduling

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// mockRepo stands in for one scheduler endpoint.
type mockRepo struct {
	mu      sync.Mutex
	current *Config
	posted  []Config
	err     error
}

func (m *mockRepo) Fetch(_ context.Context) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.current == nil {
		return nil, &apiclient.ServerError{StatusCode: http.StatusNotFound, Message: "No schedule configured."}
	}
	out := *m.current
	return &out, nil
}

func (m *mockRepo) Create(_ context.Context, cfg Config) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.posted = append(m.posted, cfg)
	m.current = &cfg
	out := cfg
	out.Message = "Schedule updated successfully."
	return &out, nil
}

func newTestService() (*Service, map[string]*mockRepo) {
	repos := map[string]*mockRepo{}
	svc := NewService(func(t Task) Repository {
		r := &mockRepo{}
		repos[t.ID] = r
		return r
	})
	return svc, repos
}

func TestService_CreateAndFetch(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	cfg, err := svc.Create(ctx, TaskAdmission, Config{Every: 6, Period: PeriodHours, Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Every != 6 || len(repos[TaskAdmission].posted) != 1 {
		t.Errorf("unexpected result %+v", cfg)
	}
	if len(repos[TaskVaccination].posted) != 0 {
		t.Error("only the admission endpoint should be called")
	}

	st, err := svc.State(TaskAdmission)
	if err != nil || st.Value == nil || st.Value.Period != PeriodHours {
		t.Errorf("unexpected state %+v, %v", st, err)
	}

	got, err := svc.Fetch(ctx, TaskAdmission)
	if err != nil || got.Every != 6 {
		t.Errorf("Fetch() = %+v, %v", got, err)
	}
}

func TestService_CreateRejectsInvalidWithoutCalling(t *testing.T) {
	svc, repos := newTestService()
	_, err := svc.Create(context.Background(), TaskAppointment, Config{Every: 0, Period: PeriodDays})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apiclient.HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("expected a 400-class error, got %v", err)
	}
	if len(repos[TaskAppointment].posted) != 0 {
		t.Error("invalid config must not be posted")
	}
}

func TestService_CreateClampsClock(t *testing.T) {
	svc, repos := newTestService()
	cfg, err := svc.Create(context.Background(), TaskDoctorAppointmentReminder, Config{Hour: intp(30), Minute: intp(75), Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if *cfg.Hour != 23 || *cfg.Minute != 59 {
		t.Errorf("expected clamped 23:59, got %d:%d", *cfg.Hour, *cfg.Minute)
	}
	if posted := repos[TaskDoctorAppointmentReminder].posted[0]; *posted.Hour != 23 {
		t.Errorf("backend received hour %d", *posted.Hour)
	}
}

func TestService_UnknownTask(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Fetch(context.Background(), "labReport"); err == nil || err.Error() != `unknown schedule task "labReport"` {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := svc.State("labReport"); err == nil {
		t.Error("expected error")
	}
}

func TestService_FailureKeepsPreviousValue(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()
	if _, err := svc.Create(ctx, TaskVaccination, Config{Every: 1, Period: PeriodDays, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	repos[TaskVaccination].err = &apiclient.ServerError{StatusCode: http.StatusInternalServerError, Message: "celery beat unavailable"}

	if _, err := svc.Fetch(ctx, TaskVaccination); err == nil {
		t.Fatal("expected error")
	}
	st, _ := svc.State(TaskVaccination)
	if st.Loading || st.Error == "" || st.Value == nil {
		t.Errorf("expected error with previous value kept, got %+v", st)
	}
}

func TestService_Overview(t *testing.T) {
	svc, repos := newTestService()
	repos[TaskAdmission].current = &Config{Every: 2, Period: PeriodHours, Enabled: true}
	repos[TaskDoctorAppointmentReminder].current = &Config{Hour: intp(8), Minute: intp(0), Enabled: true}

	rows := svc.Overview(context.Background())
	if len(rows) != len(Tasks) {
		t.Fatalf("expected %d rows, got %d", len(Tasks), len(rows))
	}
	byID := map[string]TaskState{}
	for _, r := range rows {
		byID[r.Task.ID] = r
	}
	if byID[TaskAdmission].Description != "every 2 hours" {
		t.Errorf("unexpected admission row %+v", byID[TaskAdmission])
	}
	if byID[TaskDoctorAppointmentReminder].Description != "daily at 08:00" {
		t.Errorf("unexpected doctor row %+v", byID[TaskDoctorAppointmentReminder])
	}
	if byID[TaskVaccination].State.Error == "" {
		t.Error("unconfigured task should carry the fetch error")
	}
}
