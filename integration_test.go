// Package francine_test exercises the master and worker stacks wired
// together the way cmd/master and cmd/worker assemble them, driving the
// client-facing HTTP surface end-to-end rather than any single package in
// isolation. It covers the scenarios that need more than one component to
// observe.
package francine_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/lighttransport/francine/build"
	"github.com/lighttransport/francine/dispatcher"
	"github.com/lighttransport/francine/dispatcher/api"
	"github.com/lighttransport/francine/eviction"
	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/renderer"
	"github.com/lighttransport/francine/rpc"
	"github.com/lighttransport/francine/workerservice"
	"github.com/lighttransport/francine/workerstore"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// testFleet is a master (NodeDirectory + FileDirectory + Dispatcher + HTTP
// API) wired to one or more real worker RPC servers, all on loopback.
type testFleet struct {
	nodes *nodedirectory.Directory
	files *filedirectory.Directory
	http  *httptest.Server

	stores []*workerstore.Store
}

func startWorker(t *testing.T, name string) (modules.NetAddress, *workerstore.Store) {
	t.Helper()
	dir := build.TempDir("integration", name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	store := workerstore.NewStore(dir, 1<<20)
	adapter := renderer.NewAdapter(renderer.DefaultConfig())
	log := persist.NewLogger(discardWriter{})

	srv, err := rpc.NewServer("127.0.0.1:0", log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	workerservice.New(store, adapter, log).Register(srv)
	return srv.Address(), store
}

func startFleet(t *testing.T, ttl time.Duration, numWorkers int) *testFleet {
	t.Helper()
	nodes := nodedirectory.New()
	files := filedirectory.New(ttl)
	log := persist.NewLogger(discardWriter{})

	fleet := &testFleet{nodes: nodes, files: files}
	for i := 0; i < numWorkers; i++ {
		addr, store := startWorker(t, fmt.Sprintf("%s-%d", t.Name(), i))
		nodes.AddWorker(addr)
		fleet.stores = append(fleet.stores, store)
	}

	disp := dispatcher.New(nodes, files, log)
	apiServer := api.New(disp, 30*time.Second, 30*time.Second, log)
	fleet.http = httptest.NewServer(apiServer)
	t.Cleanup(fleet.http.Close)
	return fleet
}

// TestIntegrationRenderAOBenchOverHTTP renders AOBENCH on a single-worker
// fleet through the client-facing HTTP surface instead of the Dispatcher Go
// API directly.
func TestIntegrationRenderAOBenchOverHTTP(t *testing.T) {
	fleet := startFleet(t, time.Hour, 1)

	body, _ := json.Marshal(map[string]interface{}{
		"renderer": "AOBENCH",
		"files":    []interface{}{},
	})
	resp, err := http.Post(fleet.http.URL+"/render", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Image     string `json:"image"`
		ImageType string `json:"imageType"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ImageType != "PNG" {
		t.Errorf("expected PNG, got %v", out.ImageType)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
		t.Errorf("expected a 256x256 image, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

// TestIntegrationRenderNoWorkersOverHTTP renders against an empty fleet,
// checking the HTTP status mapping for RESOURCE_EXHAUSTED (429, per
// dispatcher/api's statusFor table).
func TestIntegrationRenderNoWorkersOverHTTP(t *testing.T) {
	fleet := startFleet(t, time.Hour, 0)

	body, _ := json.Marshal(map[string]interface{}{"renderer": "AOBENCH"})
	resp, err := http.Post(fleet.http.URL+"/render", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 (RESOURCE_EXHAUSTED), got %d", resp.StatusCode)
	}
}

// TestIntegrationUploadLandsOnExactlyOneWorker checks that UploadDirect's
// placement is observable from the FileDirectory's perspective: after an
// upload, exactly one worker among the fleet holds the content.
func TestIntegrationUploadLandsOnExactlyOneWorker(t *testing.T) {
	fleet := startFleet(t, time.Hour, 3)

	body, _ := json.Marshal(map[string]interface{}{
		"content": base64.StdEncoding.EncodeToString([]byte("scene description")),
	})
	resp, err := http.Post(fleet.http.URL+"/upload", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}

	holders := 0
	for w := modules.WorkerId(0); w < 3; w++ {
		if len(fleet.files.ListMissingFiles(w, []modules.FileId{modules.FileId(out.ID)})) == 0 {
			holders++
		}
	}
	if holders != 1 {
		t.Errorf("expected exactly one holder after UploadDirect, got %d", holders)
	}
}

// TestIntegrationEvictionReclaimsExpiredUpload exercises the full vertical
// slice from an HTTP upload through the FileDirectory's TTL and the
// eviction Loop's Delete RPC, confirming the content is gone from the
// worker's store afterward, end-to-end rather than against FileDirectory in
// isolation.
func TestIntegrationEvictionReclaimsExpiredUpload(t *testing.T) {
	fleet := startFleet(t, time.Millisecond, 1)

	body, _ := json.Marshal(map[string]interface{}{
		"content": base64.StdEncoding.EncodeToString([]byte("ephemeral")),
	})
	resp, err := http.Post(fleet.http.URL+"/upload", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&out)

	time.Sleep(5 * time.Millisecond)

	log := persist.NewLogger(discardWriter{})
	loop := eviction.New(fleet.files, fleet.nodes, 20*time.Millisecond, log)
	loop.Start()
	defer loop.Close()

	// IsFileAlive goes false the instant the TTL elapses; the store copy is
	// only reclaimed once an eviction cycle has actually run, so poll that.
	err = build.Retry(200, 10*time.Millisecond, func() error {
		if _, err := fleet.stores[0].Get(modules.FileId(out.ID)); err == nil {
			return fmt.Errorf("still present")
		}
		return nil
	})
	if err != nil {
		t.Error("expired, unlocked upload should eventually be deleted from the worker's store")
	}
	if fleet.files.IsFileAlive(modules.FileId(out.ID)) {
		t.Error("expired, unlocked upload should not still be alive in the directory")
	}
}
