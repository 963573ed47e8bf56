package lab

import (
	"context"
	"io"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// Backend collection paths.
const (
	PathLabTests            = "lab-tests"
	PathReferenceRanges     = "reference-ranges"
	PathLabRequests         = "lab-requests"
	PathLabRequestItems     = "lab-request-items"
	PathLabResults          = "lab-results"
	PathLabResultParameters = "lab-result-parameters"
	bulkUploadSubpath       = "bulk-upload"
	bulkUploadFileFormField = "file"
)

// restRepo adapts an apiclient.Resource to store.Backend.
type restRepo[T store.Entity] struct {
	res *apiclient.Resource[T]
}

func newRestRepo[T store.Entity](c *apiclient.Client, path, name string) *restRepo[T] {
	return &restRepo[T]{res: apiclient.NewResource[T](c, path, name)}
}

func (r *restRepo[T]) List(ctx context.Context) ([]T, error) {
	return r.res.List(ctx, nil)
}

func (r *restRepo[T]) Get(ctx context.Context, id int64) (*T, error) {
	return r.res.Get(ctx, id)
}

func (r *restRepo[T]) Create(ctx context.Context, payload any) (*T, error) {
	return r.res.Create(ctx, payload)
}

func (r *restRepo[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	return r.res.Update(ctx, id, payload)
}

func (r *restRepo[T]) Delete(ctx context.Context, id int64) error {
	return r.res.Delete(ctx, id)
}

func (r *restRepo[T]) BulkUpload(ctx context.Context, filename string, file io.Reader) (*BulkUploadResult, error) {
	var out BulkUploadResult
	if err := r.res.Upload(ctx, bulkUploadSubpath, bulkUploadFileFormField, filename, file, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func NewLabTestRepoREST(c *apiclient.Client) LabTestRepository {
	return newRestRepo[LabTest](c, PathLabTests, "lab test")
}

func NewReferenceRangeRepoREST(c *apiclient.Client) ReferenceRangeRepository {
	return newRestRepo[ReferenceRange](c, PathReferenceRanges, "reference range")
}

func NewLabRequestRepoREST(c *apiclient.Client) LabRequestRepository {
	return newRestRepo[LabRequest](c, PathLabRequests, "lab request")
}

func NewLabRequestItemRepoREST(c *apiclient.Client) LabRequestItemRepository {
	return newRestRepo[LabRequestItem](c, PathLabRequestItems, "lab request item")
}

func NewLabResultRepoREST(c *apiclient.Client) LabResultRepository {
	return newRestRepo[LabResult](c, PathLabResults, "lab result")
}

func NewLabResultParameterRepoREST(c *apiclient.Client) LabResultParameterRepository {
	return newRestRepo[LabResultParameter](c, PathLabResultParameters, "lab result parameter")
}
