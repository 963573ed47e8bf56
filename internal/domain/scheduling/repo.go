package scheduling

import (
	"context"
	"net/http"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// Repository reads and writes one task's configuration.
type Repository = store.SingleBackend[Config]

type restRepo struct {
	client *apiclient.Client
	task   Task
}

// NewRepoREST binds a task to its scheduler endpoint on the backend.
func NewRepoREST(c *apiclient.Client, t Task) Repository {
	return &restRepo{client: c, task: t}
}

func (r *restRepo) Fetch(ctx context.Context) (*Config, error) {
	var out Config
	if err := r.client.Do(ctx, http.MethodGet, r.task.Endpoint, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create posts cfg. The scheduler answers with a message only, so the saved
// value is the normalized config that was sent.
func (r *restRepo) Create(ctx context.Context, cfg Config) (*Config, error) {
	var ack struct {
		Message string `json:"message"`
	}
	if err := r.client.Do(ctx, http.MethodPost, r.task.Endpoint, nil, cfg.Payload(r.task), &ack); err != nil {
		return nil, err
	}
	out := cfg.Normalize(r.task)
	out.Message = ack.Message
	return &out, nil
}
