package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClient_CreateRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/runs" {
			t.Errorf("request = %s %s, want POST /v1/runs", r.Method, r.URL.Path)
		}
		var params CreateRunParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatalf("decoding params: %v", err)
		}
		if params.Prompt != "write a haiku" || params.AgentCount != 3 {
			t.Errorf("params = %+v", params)
		}
		json.NewEncoder(w).Encode(map[string]string{"runId": "run-abc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	runID, err := c.CreateRun(context.Background(), CreateRunParams{Prompt: "write a haiku", AgentCount: 3})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if runID != "run-abc" {
		t.Errorf("CreateRun() = %q, want %q", runID, "run-abc")
	}
}

func TestClient_CreateRunRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"runId": "run-retry"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(5))
	runID, err := c.CreateRun(context.Background(), CreateRunParams{Prompt: "p", AgentCount: 1})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if runID != "run-retry" {
		t.Errorf("CreateRun() = %q, want %q", runID, "run-retry")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestClient_CreateRunClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(5))
	_, err := c.CreateRun(context.Background(), CreateRunParams{Prompt: "", AgentCount: 1})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("CreateRun() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestClient_SelectWinner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runs/run-9/winner" {
			t.Errorf("path = %s, want /v1/runs/run-9/winner", r.URL.Path)
		}
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["agentId"] != 2 {
			t.Errorf("agentId = %d, want 2", body["agentId"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).SelectWinner(context.Background(), "run-9", 2); err != nil {
		t.Fatalf("SelectWinner() error = %v", err)
	}
}

func TestClient_SelectWinnerNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).SelectWinner(context.Background(), "run-9", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SelectWinner() error = %v, want *APIError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}
