package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Resource binds a Client to one backend collection, e.g. "lab-requests".
// Name is used in guard-clause messages ("lab request ID is required").
type Resource[T any] struct {
	client *Client
	path   string
	name   string
}

func NewResource[T any](c *Client, path, name string) *Resource[T] {
	return &Resource[T]{client: c, path: path, name: name}
}

func (r *Resource[T]) Path() string { return r.path }

func (r *Resource[T]) itemPath(id int64, rest ...string) (string, error) {
	if id <= 0 {
		return "", &MissingArgumentError{Name: r.name + " ID"}
	}
	p := r.path + "/" + strconv.FormatInt(id, 10)
	for _, seg := range rest {
		p += "/" + seg
	}
	return p, nil
}

// List fetches the whole collection. Paginated responses are flattened to
// their results array.
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := r.client.Do(ctx, http.MethodGet, r.path, query, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

func (r *Resource[T]) Get(ctx context.Context, id int64) (*T, error) {
	p, err := r.itemPath(id)
	if err != nil {
		return nil, err
	}
	var out T
	if err := r.client.Do(ctx, http.MethodGet, p, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Resource[T]) Create(ctx context.Context, payload any) (*T, error) {
	if payload == nil {
		return nil, &MissingArgumentError{Name: r.name + " data"}
	}
	var out T
	if err := r.client.Do(ctx, http.MethodPost, r.path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update sends a partial update (PATCH).
func (r *Resource[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	p, err := r.itemPath(id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, &MissingArgumentError{Name: r.name + " data"}
	}
	var out T
	if err := r.client.Do(ctx, http.MethodPatch, p, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	p, err := r.itemPath(id)
	if err != nil {
		return err
	}
	return r.client.Do(ctx, http.MethodDelete, p, nil, nil, nil)
}

// Action POSTs to a detail route such as /diagnoses/{id}/mark_resolved/.
func (r *Resource[T]) Action(ctx context.Context, id int64, action string) (*T, error) {
	if action == "" {
		return nil, &MissingArgumentError{Name: "status action"}
	}
	p, err := r.itemPath(id, action)
	if err != nil {
		return nil, err
	}
	var out T
	if err := r.client.Do(ctx, http.MethodPost, p, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search GETs /{path}/search/ with the given query.
func (r *Resource[T]) Search(ctx context.Context, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := r.client.Do(ctx, http.MethodGet, r.path+"/search", query, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

// Upload posts a file to /{path}/{sub}/ (sub may be empty) and decodes the
// response into out.
func (r *Resource[T]) Upload(ctx context.Context, sub, field, filename string, file io.Reader, fields map[string]string, out any) error {
	p := r.path
	if sub != "" {
		p += "/" + sub
	}
	return r.client.Upload(ctx, p, field, filename, file, fields, out)
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if page.Results == nil {
		return []T{}, nil
	}
	return page.Results, nil
}
