package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mixtape/internal/api"
	"mixtape/internal/apiclient"
	"mixtape/internal/batch"
	"mixtape/internal/workflow"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, code int, env api.Envelope) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestCreateBatchSendsRequestAndToken(t *testing.T) {
	var gotAuth, gotQuery string
	var gotBody api.CreateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		b := batch.New("abc", gotBody.Name, []string{"https://b23.tv/x"}, batch.Options{AutoTag: true})
		writeEnvelope(t, w, http.StatusCreated, api.Envelope{Success: true, Message: "Batch created", Data: b})
	}))
	defer ts.Close()

	client := apiclient.New(ts.URL+"/", "tok")
	req := api.CreateRequest{Request: batch.Request{Name: "Road Trip"}, Text: "https://b23.tv/x"}
	b, err := client.CreateBatch(context.Background(), req, true)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if b.ID != "abc" || b.Name != "Road Trip" || b.TotalTasks != 1 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotQuery != "start=true" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotBody.Text != "https://b23.tv/x" {
		t.Fatalf("text not forwarded: %+v", gotBody)
	}
}

func TestFailureEnvelopeBecomesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusNotFound, api.Envelope{Error: batch.KindNotFound, Message: "batch nope not found"})
	}))
	defer ts.Close()

	_, err := apiclient.New(ts.URL, "").GetBatch(context.Background(), "nope")
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Kind != batch.KindNotFound {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if !apiclient.IsKind(err, batch.KindNotFound) {
		t.Fatal("IsKind should match not_found")
	}
	if err.Error() != "batch nope not found" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestValidateReturnsReportWithError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusBadRequest, api.Envelope{
			Error:   batch.KindValidation,
			Message: "no valid Bilibili URL found",
			Data:    api.ValidationResult{TotalInvalid: 2},
		})
	}))
	defer ts.Close()

	report, err := apiclient.New(ts.URL, "").Validate(context.Background(), "a\nb")
	if !apiclient.IsKind(err, batch.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if report.TotalInvalid != 2 {
		t.Fatalf("report not decoded: %+v", report)
	}
}

func TestCleanupPassesDays(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeEnvelope(t, w, http.StatusOK, api.Envelope{Success: true, Data: api.CleanupResult{Days: 3, Removed: 2}})
	}))
	defer ts.Close()

	result, err := apiclient.New(ts.URL, "").Cleanup(context.Background(), 3)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if gotQuery != "days=3" || result.Removed != 2 {
		t.Fatalf("query=%q result=%+v", gotQuery, result)
	}
}

func TestUnavailableDaemon(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = apiclient.New("http://"+addr, "").Statistics(context.Background())
	if !errors.Is(err, apiclient.ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}

func TestWatchDeliversUpdatesUntilClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/batches/b1/ws") {
			writeEnvelope(t, w, http.StatusNotFound, api.Envelope{Error: batch.KindNotFound, Message: "batch b1 not found"})
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, status := range []batch.Status{batch.StatusDownloading, batch.StatusCompleted} {
			if err := conn.WriteJSON(workflow.Progress{ID: "b1", Status: status}); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "completed"),
			time.Now().Add(time.Second))
	}))
	defer ts.Close()

	var seen []batch.Status
	err := apiclient.New(ts.URL, "").Watch(context.Background(), "b1", func(p workflow.Progress) error {
		seen = append(seen, p.Status)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(seen) != 2 || seen[1] != batch.StatusCompleted {
		t.Fatalf("unexpected updates: %v", seen)
	}
}

func TestWatchReportsHandshakeEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusNotFound, api.Envelope{Error: batch.KindNotFound, Message: "batch zz not found"})
	}))
	defer ts.Close()

	err := apiclient.New(ts.URL, "").Watch(context.Background(), "zz", func(workflow.Progress) error { return nil })
	if !apiclient.IsKind(err, batch.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
