package diagnosis

import (
	"context"
	"io"

	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

type DiagnosisRepository interface {
	store.Backend[Diagnosis]
	Search(ctx context.Context, q string) ([]Diagnosis, error)
	Action(ctx context.Context, id int64, action string) (*Diagnosis, error)
}

type TreatmentRepository interface {
	store.Backend[Treatment]
}

type AttachmentRepository interface {
	store.Backend[Attachment]
	Upload(ctx context.Context, meta AttachmentUpload, file io.Reader) (*Attachment, error)
}
