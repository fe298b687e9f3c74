package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mixtape/internal/api"
	"mixtape/internal/batch"
	"mixtape/internal/logging"
	"mixtape/internal/testsupport"
	"mixtape/internal/workflow"
)

const testURL = "https://www.bilibili.com/video/BV1xx411c7mD"

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type batchView struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Status         batch.Status `json:"status"`
	TotalTasks     int          `json:"total_tasks"`
	CompletedTasks int          `json:"completed_tasks"`
}

func newTestServer(t *testing.T, d *Daemon) *httptest.Server {
	t.Helper()
	srv := newAPIServer(d.cfg, d, logging.NewNop())
	if srv == nil {
		t.Fatal("expected api server for configured bind")
	}
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(srv.stop)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return out
}

func waitForStatus(t *testing.T, ts *httptest.Server, id string, want batch.Status) workflow.Progress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		code, env := doJSON(t, ts, http.MethodGet, "/api/batches/"+id+"/progress", nil)
		if code != http.StatusOK {
			t.Fatalf("progress returned %d: %s", code, env.Message)
		}
		progress := decodeData[workflow.Progress](t, env)
		if progress.Status == want {
			return progress
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch %s stuck in %s, want %s", id, progress.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPICreateStartAndComplete(t *testing.T) {
	d := newTestDaemon(t, &gatedFetcher{})
	ts := newTestServer(t, d)

	code, env := doJSON(t, ts, http.MethodPost, "/api/batches?start=true", map[string]any{
		"name": "Road Trip",
		"urls": []string{testURL},
	})
	if code != http.StatusCreated || !env.Success {
		t.Fatalf("create returned %d: %+v", code, env)
	}
	created := decodeData[batchView](t, env)
	if created.Name != "Road Trip" || created.TotalTasks != 1 {
		t.Fatalf("unexpected batch: %+v", created)
	}

	progress := waitForStatus(t, ts, created.ID, batch.StatusCompleted)
	if progress.Progress != 100 || progress.Summary.Completed != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	code, env = doJSON(t, ts, http.MethodGet, "/api/batches", nil)
	if code != http.StatusOK {
		t.Fatalf("list returned %d", code)
	}
	list := decodeData[struct {
		Batches []batchView `json:"batches"`
		Count   int         `json:"count"`
	}](t, env)
	if list.Count != 1 || list.Batches[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	code, env = doJSON(t, ts, http.MethodGet, "/api/statistics", nil)
	if code != http.StatusOK {
		t.Fatalf("statistics returned %d", code)
	}
	if stats := decodeData[workflow.Statistics](t, env); stats.CompletedBatches != 1 || stats.SuccessRate != 100 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestAPIErrorKindsMapToStatusCodes(t *testing.T) {
	d := newTestDaemon(t, &gatedFetcher{})
	ts := newTestServer(t, d)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{"empty name", http.MethodPost, "/api/batches", map[string]any{"name": " ", "urls": []string{testURL}}, http.StatusBadRequest, batch.KindValidation},
		{"no links", http.MethodPost, "/api/batches", map[string]any{"name": "x", "urls": []string{"https://example.com"}}, http.StatusBadRequest, batch.KindValidation},
		{"missing body", http.MethodPost, "/api/batches", nil, http.StatusBadRequest, batch.KindValidation},
		{"unknown batch", http.MethodGet, "/api/batches/nope", nil, http.StatusNotFound, batch.KindNotFound},
		{"unknown status filter", http.MethodGet, "/api/batches?status=paused", nil, http.StatusBadRequest, batch.KindValidation},
		{"bad cleanup days", http.MethodPost, "/api/cleanup?days=soon", nil, http.StatusBadRequest, batch.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := doJSON(t, ts, tc.method, tc.path, tc.body)
			if code != tc.wantCode || env.Error != tc.wantKind || env.Success {
				t.Fatalf("got %d %q, want %d %q", code, env.Error, tc.wantCode, tc.wantKind)
			}
		})
	}
}

func TestAPIStartTwiceIsIllegal(t *testing.T) {
	release := make(chan struct{})
	d := newTestDaemon(t, &gatedFetcher{release: release})
	ts := newTestServer(t, d)
	defer close(release)

	_, env := doJSON(t, ts, http.MethodPost, "/api/batches", map[string]any{"name": "Twice", "urls": []string{testURL}})
	id := decodeData[batchView](t, env).ID

	if code, env := doJSON(t, ts, http.MethodPost, "/api/batches/"+id+"/start", nil); code != http.StatusOK {
		t.Fatalf("first start returned %d: %s", code, env.Message)
	}
	code, env := doJSON(t, ts, http.MethodPost, "/api/batches/"+id+"/start", nil)
	if code != http.StatusConflict || env.Error != batch.KindIllegalTransition {
		t.Fatalf("second start: got %d %q", code, env.Error)
	}

	if code, _ := doJSON(t, ts, http.MethodPost, "/api/batches/"+id+"/cancel", nil); code != http.StatusOK {
		t.Fatalf("cancel returned %d", code)
	}
	if code, _ := doJSON(t, ts, http.MethodDelete, "/api/batches/"+id, nil); code != http.StatusOK {
		t.Fatalf("delete returned %d", code)
	}
	if code, _ := doJSON(t, ts, http.MethodGet, "/api/batches/"+id, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete returned %d", code)
	}
}

func TestAPIValidate(t *testing.T) {
	d := newTestDaemon(t, &gatedFetcher{})
	ts := newTestServer(t, d)

	code, env := doJSON(t, ts, http.MethodPost, "/api/validate", map[string]string{
		"text": testURL + "\nnot a link\n",
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("validate returned %d: %+v", code, env)
	}
	report := decodeData[api.ValidationResult](t, env)
	if report.TotalValid != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	code, env = doJSON(t, ts, http.MethodPost, "/api/validate", map[string]string{"text": "nothing here"})
	if code != http.StatusBadRequest || env.Error != batch.KindValidation {
		t.Fatalf("invalid text: got %d %q", code, env.Error)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	d := newTestDaemon(t, &gatedFetcher{}, testsupport.WithAPIToken("s3cret"))
	ts := newTestServer(t, d)

	code, env := doJSON(t, ts, http.MethodGet, "/api/statistics", nil)
	if code != http.StatusUnauthorized || env.Error != "unauthorized" {
		t.Fatalf("without token: got %d %q", code, env.Error)
	}
	code, _ = doJSON(t, ts, http.MethodGet, "/api/statistics", nil, "Authorization", "Bearer wrong")
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d", code)
	}
	code, _ = doJSON(t, ts, http.MethodGet, "/api/statistics", nil, "Authorization", "Bearer s3cret")
	if code != http.StatusOK {
		t.Fatalf("valid token: got %d", code)
	}
}

func TestAPIWatchStreamsUntilTerminal(t *testing.T) {
	release := make(chan struct{})
	d := newTestDaemon(t, &gatedFetcher{release: release})
	ts := newTestServer(t, d)

	_, env := doJSON(t, ts, http.MethodPost, "/api/batches?start=true", map[string]any{
		"name": "Watched",
		"urls": []string{testURL},
	})
	id := decodeData[batchView](t, env).ID

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/batches/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first workflow.Progress
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial progress: %v", err)
	}
	if first.ID != id || first.Status.IsTerminal() {
		t.Fatalf("unexpected initial progress: %+v", first)
	}
	close(release)

	for {
		var progress workflow.Progress
		if err := conn.ReadJSON(&progress); err != nil {
			t.Fatalf("read progress: %v", err)
		}
		if progress.Status == batch.StatusCompleted {
			break
		}
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestAPIWatchUnknownBatch(t *testing.T) {
	d := newTestDaemon(t, &gatedFetcher{})
	ts := newTestServer(t, d)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/batches/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %v", resp)
	}
}
