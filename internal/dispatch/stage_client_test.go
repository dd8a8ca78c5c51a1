package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPStageClientProcessEvents(t *testing.T) {
	var gotPath string
	var gotLimit int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req stageRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotLimit = req.Limit
		json.NewEncoder(w).Encode(ProcessResult{ProcessedCount: 7, IgnoredCount: 2, NotificationsCreated: 5})
	}))
	defer srv.Close()

	client := NewHTTPStageClient(srv.URL, 5*time.Second)
	res, err := client.ProcessEvents(context.Background(), 25)
	if err != nil {
		t.Fatalf("ProcessEvents: %v", err)
	}

	if gotPath != "/process-events" {
		t.Fatalf("path = %q, want /process-events", gotPath)
	}
	if gotLimit != 25 {
		t.Fatalf("limit = %d, want 25", gotLimit)
	}
	if res.ProcessedCount != 7 || res.IgnoredCount != 2 || res.NotificationsCreated != 5 {
		t.Fatalf("result = %+v", res)
	}
}

func TestHTTPStageClientRunNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run-notifications" {
			t.Errorf("path = %q, want /run-notifications", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunResult{ClaimedCount: 4, ProcessedSuccess: 3, ScheduledRetries: 1})
	}))
	defer srv.Close()

	client := NewHTTPStageClient(srv.URL, 5*time.Second)
	res, err := client.RunNotifications(context.Background(), 50)
	if err != nil {
		t.Fatalf("RunNotifications: %v", err)
	}
	if res.ClaimedCount != 4 || res.ProcessedSuccess != 3 || res.ScheduledRetries != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestHTTPStageClientNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPStageClient(srv.URL, 5*time.Second)
	if _, err := client.ProcessEvents(context.Background(), 10); err == nil {
		t.Fatal("expected error for a 500 stage response")
	}
}
