package backup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/corosback/client"
	"github.com/corosback/models"
)

// fakeCorosServer is an httptest stand-in for the real API: login,
// paginated query and the two-step download flow.
type fakeCorosServer struct {
	mu         sync.Mutex
	activities []models.Activity
	pageSize   int
	srv        *httptest.Server
}

func newFakeCorosServer(t *testing.T, activities []models.Activity, pageSize int) *fakeCorosServer {
	t.Helper()
	f := &fakeCorosServer{activities: activities, pageSize: pageSize}

	mux := http.NewServeMux()
	mux.HandleFunc("/account/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"result": "0000",
			"data":   map[string]any{"accessToken": "tok", "userId": "42"},
		})
	})
	mux.HandleFunc("/activity/query", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		acts := f.activities
		f.mu.Unlock()

		page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
		if page < 1 {
			page = 1
		}
		totalPage := (len(acts) + f.pageSize - 1) / f.pageSize
		start := (page - 1) * f.pageSize
		end := start + f.pageSize
		if start > len(acts) {
			start, end = len(acts), len(acts)
		} else if end > len(acts) {
			end = len(acts)
		}
		writeJSON(w, map[string]any{
			"result": "0000",
			"data": map[string]any{
				"totalPage": totalPage,
				"count":     len(acts),
				"dataList":  acts[start:end],
			},
		})
	})
	mux.HandleFunc("/activity/detail/download", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("labelId")
		fileType := r.URL.Query().Get("fileType")
		writeJSON(w, map[string]any{
			"result": "0000",
			"data":   map[string]any{"fileUrl": f.srv.URL + "/files/" + id + "/" + fileType},
		})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "payload %s", r.URL.Path)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCorosServer) setActivities(acts []models.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = acts
}

func (f *fakeCorosServer) newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:           f.srv.URL,
		PageSize:          f.pageSize,
		Timeout:           5 * time.Second,
		RetryAttempts:     1,
		RetryDelay:        time.Millisecond,
		RequestsPerSecond: 10000,
	})
}

func countFiles(t *testing.T, dir, pattern string) int {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		t.Fatal(err)
	}
	return len(paths)
}

func TestEndToEndIncrementalBackup(t *testing.T) {
	dir := t.TempDir()
	acts := testActivities(5)
	server := newFakeCorosServer(t, acts, 2) // 3 pages: 2/2/1

	run := func() *RunSummary {
		store := NewStateStore(filepath.Join(dir, StateFileName))
		orch := NewOrchestrator(server.newClient(), store, dir, testFormats, 1)
		summary, err := orch.Run(context.Background(), "user@example.com", "pw")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return summary
	}

	// First run: everything comes down.
	summary := run()
	if summary.Found != 5 || summary.Downloaded != 5 {
		t.Fatalf("unexpected first run summary %+v", summary)
	}
	if got := countFiles(t, dir, "*-metadata.json"); got != 5 {
		t.Errorf("expected 5 metadata files, got %d", got)
	}
	if got := countFiles(t, dir, "*.fit") + countFiles(t, dir, "*.tcx"); got != 10 {
		t.Errorf("expected 10 export files, got %d", got)
	}

	// A downloaded export must hold exactly what the server served.
	first := acts[0]
	data, err := os.ReadFile(filepath.Join(dir, first.FilePrefix()+".fit"))
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("payload /files/%s/4", first.LabelID)
	if string(data) != want {
		t.Errorf("export content %q, want %q", string(data), want)
	}

	// Second run against one additional remote activity: only the new
	// one is downloaded and exactly one id is appended to state.
	server.setActivities(testActivities(6))
	summary = run()
	if summary.Found != 6 || summary.Downloaded != 1 || summary.Skipped != 5 {
		t.Fatalf("unexpected second run summary %+v", summary)
	}
	if got := countFiles(t, dir, "*-metadata.json"); got != 6 {
		t.Errorf("expected 6 metadata files, got %d", got)
	}

	store := NewStateStore(filepath.Join(dir, StateFileName))
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 6 {
		t.Errorf("expected 6 committed ids, got %d", store.Len())
	}
}
