package diagnosis

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

const (
	PathDiagnoses   = "diagnoses"
	PathTreatments  = "treatments"
	PathAttachments = "attachments"
	attachmentField = "file"
)

type restRepo[T store.Entity] struct {
	res *apiclient.Resource[T]
}

func (r *restRepo[T]) List(ctx context.Context) ([]T, error) { return r.res.List(ctx, nil) }

func (r *restRepo[T]) Get(ctx context.Context, id int64) (*T, error) { return r.res.Get(ctx, id) }

func (r *restRepo[T]) Create(ctx context.Context, payload any) (*T, error) {
	return r.res.Create(ctx, payload)
}

func (r *restRepo[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	return r.res.Update(ctx, id, payload)
}

func (r *restRepo[T]) Delete(ctx context.Context, id int64) error { return r.res.Delete(ctx, id) }

type diagnosisRepoREST struct {
	restRepo[Diagnosis]
}

func NewDiagnosisRepoREST(c *apiclient.Client) DiagnosisRepository {
	return &diagnosisRepoREST{restRepo[Diagnosis]{res: apiclient.NewResource[Diagnosis](c, PathDiagnoses, "diagnosis")}}
}

func (r *diagnosisRepoREST) Search(ctx context.Context, q string) ([]Diagnosis, error) {
	return r.res.Search(ctx, url.Values{"q": {q}})
}

func (r *diagnosisRepoREST) Action(ctx context.Context, id int64, action string) (*Diagnosis, error) {
	return r.res.Action(ctx, id, action)
}

func NewTreatmentRepoREST(c *apiclient.Client) TreatmentRepository {
	return &restRepo[Treatment]{res: apiclient.NewResource[Treatment](c, PathTreatments, "treatment")}
}

type attachmentRepoREST struct {
	restRepo[Attachment]
}

func NewAttachmentRepoREST(c *apiclient.Client) AttachmentRepository {
	return &attachmentRepoREST{restRepo[Attachment]{res: apiclient.NewResource[Attachment](c, PathAttachments, "attachment")}}
}

// Upload posts the multipart form the backend's attachment serializer
// expects: diagnosis, title, description and the file part.
func (r *attachmentRepoREST) Upload(ctx context.Context, meta AttachmentUpload, file io.Reader) (*Attachment, error) {
	fields := map[string]string{
		"diagnosis":   strconv.FormatInt(meta.Diagnosis, 10),
		"title":       meta.Title,
		"description": meta.Description,
	}
	var out Attachment
	if err := r.res.Upload(ctx, "", attachmentField, meta.Filename, file, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
