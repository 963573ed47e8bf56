package scheduling

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// UnknownTaskError is returned for a task id outside Tasks.
type UnknownTaskError struct {
	ID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown schedule task %q", e.ID)
}

// Service keeps one store.Single per task. Nothing is run locally; configs
// are only forwarded to the external scheduler.
type Service struct {
	singles map[string]*store.Single[Config]
}

func NewService(newRepo func(Task) Repository) *Service {
	s := &Service{singles: make(map[string]*store.Single[Config], len(Tasks))}
	for _, t := range Tasks {
		s.singles[t.ID] = store.NewSingle[Config](newRepo(t))
	}
	return s
}

func NewRESTService(c *apiclient.Client) *Service {
	return NewService(func(t Task) Repository { return NewRepoREST(c, t) })
}

func (s *Service) single(taskID string) (Task, *store.Single[Config], error) {
	t, ok := Lookup(taskID)
	if !ok {
		return Task{}, nil, &UnknownTaskError{ID: taskID}
	}
	return t, s.singles[t.ID], nil
}

// Fetch loads a task's current configuration from the scheduler.
func (s *Service) Fetch(ctx context.Context, taskID string) (*Config, error) {
	_, sg, err := s.single(taskID)
	if err != nil {
		return nil, err
	}
	return sg.Fetch(ctx)
}

// Create normalizes and validates cfg, then posts it. A rejected config
// never reaches the backend.
func (s *Service) Create(ctx context.Context, taskID string, cfg Config) (*Config, error) {
	t, sg, err := s.single(taskID)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalize(t)
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}
	return sg.Create(ctx, cfg)
}

func (s *Service) State(taskID string) (store.SingleState[Config], error) {
	_, sg, err := s.single(taskID)
	if err != nil {
		return store.SingleState[Config]{}, err
	}
	return sg.Snapshot(), nil
}

// TaskState is one row of the scheduled-tasks dashboard.
type TaskState struct {
	Task        Task                      `json:"task"`
	Description string                    `json:"description,omitempty"`
	State       store.SingleState[Config] `json:"state"`
}

// Overview fetches every task concurrently. A failing task keeps its error
// in its own state and does not fail the others.
func (s *Service) Overview(ctx context.Context) []TaskState {
	var g errgroup.Group
	for _, t := range Tasks {
		sg := s.singles[t.ID]
		g.Go(func() error {
			sg.Fetch(ctx)
			return nil
		})
	}
	g.Wait()

	out := make([]TaskState, 0, len(Tasks))
	for _, t := range Tasks {
		st := s.singles[t.ID].Snapshot()
		row := TaskState{Task: t, State: st}
		if st.Value != nil {
			row.Description = st.Value.Describe(t)
		}
		out = append(out, row)
	}
	return out
}
