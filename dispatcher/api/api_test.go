package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lighttransport/francine/dispatcher"
	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer() *httptest.Server {
	nodes := nodedirectory.New()
	files := filedirectory.New(time.Hour)
	log := persist.NewLogger(discardWriter{})
	disp := dispatcher.New(nodes, files, log)
	return httptest.NewServer(New(disp, time.Second, time.Second, log))
}

// TestUploadInvalidBase64IsBadRequest checks that a malformed base64
// content field is rejected as INVALID_ARGUMENT (400), without reaching
// the Dispatcher at all.
func TestUploadInvalidBase64IsBadRequest(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{"content": "not-valid-base64!!"})
	resp, err := http.Post(srv.URL+"/upload", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// TestUploadMalformedJSONIsBadRequest checks that a request body that does
// not even parse as JSON is rejected as INVALID_ARGUMENT (400).
func TestUploadMalformedJSONIsBadRequest(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/upload", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// TestRenderNoWorkersIsTooManyRequests checks RESOURCE_EXHAUSTED's mapping
// to HTTP 429, with no worker registered on the underlying Dispatcher.
func TestRenderNoWorkersIsTooManyRequests(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{"renderer": "AOBENCH"})
	resp, err := http.Post(srv.URL+"/render", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}

	var errBody Error
	json.NewDecoder(resp.Body).Decode(&errBody)
	if errBody.Message == "" {
		t.Error("expected a non-empty error message body")
	}
}
