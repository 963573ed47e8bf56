package lab

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// fakeBackend is a small stand-in for the clinic REST API: every collection
// supports list, retrieve, create, partial update and delete.
type fakeBackend struct {
	mu      sync.Mutex
	data    map[string][]map[string]any
	nextID  int64
	calls   []string
	fail    map[string]int // "METHOD path" -> status
	bulk    map[string]BulkUploadResult
	bulkHit map[string]string // collection -> uploaded filename
}

func newFakeBackend(t *testing.T) (*fakeBackend, *apiclient.Client) {
	t.Helper()
	fb := &fakeBackend{
		data:    map[string][]map[string]any{},
		nextID:  100,
		fail:    map[string]int{},
		bulk:    map[string]BulkUploadResult{},
		bulkHit: map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(srv.Close)
	return fb, apiclient.New(srv.URL+"/api", apiclient.StaticToken("tok"))
}

func (fb *fakeBackend) seed(collection string, rows ...map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.data[collection] = append(fb.data[collection], rows...)
}

func (fb *fakeBackend) called(call string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (fb *fakeBackend) lastBody(collection string) map[string]any {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	rows := fb.data[collection]
	if len(rows) == 0 {
		return nil
	}
	return rows[len(rows)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func idOf(row map[string]any) int64 {
	switch v := row["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	fb.calls = append(fb.calls, r.Method+" "+path)
	if status, ok := fb.fail[r.Method+" "+path]; ok {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return
	}

	parts := strings.Split(path, "/")
	collection := parts[0]

	if len(parts) == 2 && parts[1] == "bulk-upload" {
		if _, fh, err := r.FormFile("file"); err == nil {
			fb.bulkHit[collection] = fh.Filename
		}
		res := fb.bulk[collection]
		status := http.StatusCreated
		if len(res.Errors) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, res)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rows := fb.data[collection]
			if rows == nil {
				rows = []map[string]any{}
			}
			writeJSON(w, http.StatusOK, rows)
		case http.MethodPost:
			var row map[string]any
			json.NewDecoder(r.Body).Decode(&row)
			fb.nextID++
			row["id"] = fb.nextID
			fb.data[collection] = append(fb.data[collection], row)
			writeJSON(w, http.StatusCreated, row)
		}
		return
	}

	id, _ := strconv.ParseInt(parts[1], 10, 64)
	rows := fb.data[collection]
	idx := -1
	for i, row := range rows {
		if idOf(row) == id {
			idx = i
		}
	}
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rows[idx])
	case http.MethodPatch:
		var patch map[string]any
		json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			rows[idx][k] = v
		}
		writeJSON(w, http.StatusOK, rows[idx])
	case http.MethodDelete:
		fb.data[collection] = append(rows[:idx:idx], rows[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}
