package lab

import (
	"context"
	"io"

	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

type LabTestRepository interface {
	store.Backend[LabTest]
	BulkUpload(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error)
}

type ReferenceRangeRepository interface {
	store.Backend[ReferenceRange]
	BulkUpload(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error)
}

type LabRequestRepository interface {
	store.Backend[LabRequest]
}

type LabRequestItemRepository interface {
	store.Backend[LabRequestItem]
}

type LabResultRepository interface {
	store.Backend[LabResult]
}

type LabResultParameterRepository interface {
	store.Backend[LabResultParameter]
}
