package diagnosis

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// fakeRepo is an in-memory backend collection. Payloads are round-tripped
// through JSON the way the REST client would send them.
type fakeRepo[T interface{ EntityID() int64 }] struct {
	mu     sync.Mutex
	items  []T
	nextID int64
	err    error
	calls  int
}

func (f *fakeRepo[T]) List(ctx context.Context) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]T(nil), f.items...), nil
}

func (f *fakeRepo[T]) Get(ctx context.Context, id int64) (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, it := range f.items {
		if it.EntityID() == id {
			return &it, nil
		}
	}
	return nil, &apiclient.ServerError{StatusCode: 404, Message: "Not found."}
}

func (f *fakeRepo[T]) Create(ctx context.Context, payload any) (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := map[string]any{}
	b, _ := json.Marshal(payload)
	json.Unmarshal(b, &m)
	f.nextID++
	m["id"] = f.nextID
	var out T
	b, _ = json.Marshal(m)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	f.items = append(f.items, out)
	return &out, nil
}

func (f *fakeRepo[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i, it := range f.items {
		if it.EntityID() != id {
			continue
		}
		b, _ := json.Marshal(payload)
		if err := json.Unmarshal(b, &f.items[i]); err != nil {
			return nil, err
		}
		out := f.items[i]
		return &out, nil
	}
	return nil, &apiclient.ServerError{StatusCode: 404, Message: "Not found."}
}

func (f *fakeRepo[T]) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	for i, it := range f.items {
		if it.EntityID() == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return &apiclient.ServerError{StatusCode: 404, Message: "Not found."}
}

type fakeDiagnosisRepo struct {
	fakeRepo[Diagnosis]
	lastQuery  string
	lastAction string
}

func (f *fakeDiagnosisRepo) Search(ctx context.Context, q string) ([]Diagnosis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	var out []Diagnosis
	for _, d := range f.items {
		if strings.Contains(strings.ToLower(d.Title), strings.ToLower(q)) {
			out = append(out, d)
		}
	}
	return out, nil
}

var actionStatus = map[string]string{
	ActionMarkResolved:    StatusResolved,
	ActionMarkChronic:     StatusChronic,
	ActionMarkActive:      StatusActive,
	ActionMarkRecurrent:   StatusRecurrent,
	ActionMarkProvisional: StatusProvisional,
	ActionMarkRuleOut:     StatusRuleOut,
}

func (f *fakeDiagnosisRepo) Action(ctx context.Context, id int64, action string) (*Diagnosis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAction = action
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Status = actionStatus[action]
			out := f.items[i]
			return &out, nil
		}
	}
	return nil, &apiclient.ServerError{StatusCode: 404, Message: "Not found."}
}

type fakeAttachmentRepo struct {
	fakeRepo[Attachment]
	uploaded string
}

func (f *fakeAttachmentRepo) Upload(ctx context.Context, meta AttachmentUpload, file io.Reader) (*Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(file)
	f.uploaded = string(b)
	f.nextID++
	a := Attachment{ID: f.nextID, Diagnosis: meta.Diagnosis, Title: meta.Title, Description: meta.Description, File: "/media/diagnoses/attachments/" + meta.Filename}
	f.items = append(f.items, a)
	return &a, nil
}

type fixture struct {
	svc         *Service
	diagnoses   *fakeDiagnosisRepo
	treatments  *fakeRepo[Treatment]
	attachments *fakeAttachmentRepo
}

func newFixture() *fixture {
	f := &fixture{
		diagnoses:   &fakeDiagnosisRepo{},
		treatments:  &fakeRepo[Treatment]{},
		attachments: &fakeAttachmentRepo{},
	}
	f.diagnoses.nextID = 100
	f.svc = NewService(f.diagnoses, f.treatments, f.attachments)
	return f
}
