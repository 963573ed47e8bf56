package diagnosis

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

const (
	ResourceDiagnoses   = "diagnoses"
	ResourceTreatments  = "treatments"
	ResourceAttachments = "attachments"
)

var requiredOnCreate = map[string][]string{
	ResourceDiagnoses:  {"child", "title"},
	ResourceTreatments: {"diagnosis", "title", "description"},
}

type Service struct {
	diagRepo   DiagnosisRepository
	attachRepo AttachmentRepository

	diagnoses   *store.Slice[Diagnosis]
	treatments  *store.Slice[Treatment]
	attachments *store.Slice[Attachment]

	mu      sync.Mutex
	results []Diagnosis
}

func NewService(d DiagnosisRepository, t TreatmentRepository, a AttachmentRepository) *Service {
	return &Service{
		diagRepo:    d,
		attachRepo:  a,
		diagnoses:   store.NewSlice[Diagnosis](d),
		treatments:  store.NewSlice[Treatment](t),
		attachments: store.NewSlice[Attachment](a),
		results:     []Diagnosis{},
	}
}

func NewRESTService(c *apiclient.Client) *Service {
	return NewService(NewDiagnosisRepoREST(c), NewTreatmentRepoREST(c), NewAttachmentRepoREST(c))
}

func (s *Service) Diagnoses() *store.Slice[Diagnosis]     { return s.diagnoses }
func (s *Service) Treatments() *store.Slice[Treatment]    { return s.treatments }
func (s *Service) Attachments() *store.Slice[Attachment] { return s.attachments }

func validateCreate(resource string, payload map[string]any) error {
	if payload == nil {
		return &apiclient.MissingArgumentError{Name: strings.TrimSuffix(resource, "s") + " data"}
	}
	return apiclient.RequireFields(payload, requiredOnCreate[resource]...)
}

func (s *Service) CreateDiagnosis(ctx context.Context, payload map[string]any) (*Diagnosis, error) {
	if err := validateCreate(ResourceDiagnoses, payload); err != nil {
		return nil, err
	}
	return s.diagnoses.Create(ctx, payload)
}

func (s *Service) CreateTreatment(ctx context.Context, payload map[string]any) (*Treatment, error) {
	if err := validateCreate(ResourceTreatments, payload); err != nil {
		return nil, err
	}
	return s.treatments.Create(ctx, payload)
}

// Search asks the backend for diagnoses matching q. The results are kept
// apart from the full list and, while present, replace it as the base of
// the list view.
func (s *Service) Search(ctx context.Context, q string) ([]Diagnosis, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, &apiclient.MissingArgumentError{Name: "search query 'q'"}
	}
	var found []Diagnosis
	err := s.diagnoses.Run(ctx, func(ctx context.Context) error {
		var err error
		found, err = s.diagRepo.Search(ctx, q)
		return err
	}, nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.results = slices.Clone(found)
	s.mu.Unlock()
	return found, nil
}

func (s *Service) SearchResults() []Diagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.results)
}

func (s *Service) ClearSearchResults() {
	s.mu.Lock()
	s.results = []Diagnosis{}
	s.mu.Unlock()
}

// ChangeStatus runs one of the mark_* actions and swaps the returned record
// into the list, the selection and any search results.
func (s *Service) ChangeStatus(ctx context.Context, id int64, action string) (*Diagnosis, error) {
	if id <= 0 {
		return nil, &apiclient.MissingArgumentError{Name: "diagnosis ID"}
	}
	if action == "" {
		return nil, &apiclient.MissingArgumentError{Name: "status action"}
	}
	if !IsStatusAction(action) {
		return nil, apiclient.FieldErrors{"action": "unknown status action " + action}
	}
	var updated *Diagnosis
	err := s.diagnoses.Run(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.diagRepo.Action(ctx, id, action)
		return err
	}, func(st *store.State[Diagnosis]) {
		st.Replace(*updated)
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for i := range s.results {
		if s.results[i].ID == updated.ID {
			s.results[i] = *updated
		}
	}
	s.mu.Unlock()
	return updated, nil
}

// Detail loads one diagnosis with its nested treatments and attachments
// into the selection.
func (s *Service) Detail(ctx context.Context, id int64) (*Diagnosis, error) {
	if id <= 0 {
		return nil, &apiclient.MissingArgumentError{Name: "diagnosis ID"}
	}
	return s.diagnoses.FetchByID(ctx, id)
}

// Overview fetches diagnoses, treatments and attachments concurrently.
// Every slice records its own failure; the first error is returned.
func (s *Service) Overview(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { _, err := s.diagnoses.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.treatments.FetchAll(ctx); return err })
	g.Go(func() error { _, err := s.attachments.FetchAll(ctx); return err })
	return g.Wait()
}

// UploadAttachment sends a file for a diagnosis and appends the stored
// attachment to the list.
func (s *Service) UploadAttachment(ctx context.Context, meta AttachmentUpload, file io.Reader) (*Attachment, error) {
	errs := apiclient.FieldErrors{}
	if meta.Diagnosis <= 0 {
		errs["diagnosis"] = "Required"
	}
	if strings.TrimSpace(meta.Title) == "" {
		errs["title"] = "Required"
	}
	if file == nil {
		errs["file"] = "Required"
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if meta.Filename == "" {
		meta.Filename = "attachment"
	}
	var created *Attachment
	err := s.attachments.Run(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.attachRepo.Upload(ctx, meta, file)
		return err
	}, func(st *store.State[Attachment]) {
		st.Items = append(st.Items, *created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
