package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func jsonResponse(status int, payload any) *http.Response {
	body, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func stubTransport(t *testing.T, fn roundTripFunc) {
	t.Helper()
	httpClientFactory = func() *http.Client {
		return &http.Client{Transport: fn}
	}
	t.Cleanup(func() {
		httpClientFactory = func() *http.Client { return &http.Client{Timeout: 10 * time.Second} }
	})
}

func TestCallAPI(t *testing.T) {
	stubTransport(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.URL.String() != "http://local/api/sessions" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL)
		}
		return jsonResponse(http.StatusOK, map[string]any{"count": 0}), nil
	})

	result, err := callAPI("http://local/api/", http.MethodGet, "/sessions")
	if err != nil {
		t.Fatalf("callAPI returned error: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(result, &payload); err != nil {
		t.Fatalf("unexpected response payload: %v", err)
	}
	if payload["count"] != 0.0 {
		t.Fatalf("expected count 0, got %v", payload["count"])
	}
}

func TestCallAPIErrorPayload(t *testing.T) {
	stubTransport(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, map[string]string{"error": "Session not found"}), nil
	})

	_, err := callAPI("http://local", http.MethodGet, "/session/zzz")
	if err == nil || err.Error() != "Session not found" {
		t.Fatalf("expected server error message, got %v", err)
	}
}

func TestNodeDrainCommand(t *testing.T) {
	var got string
	stubTransport(t, func(req *http.Request) (*http.Response, error) {
		got = req.Method + " " + req.URL.Path
		return jsonResponse(http.StatusOK, map[string]string{"message": "Node N1 is being drained"}), nil
	})

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--server", "http://local/api/v1/browser_cloud", "node", "drain", "N1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "POST /api/v1/browser_cloud/node/N1/drain" {
		t.Fatalf("unexpected request %q", got)
	}
	if !strings.Contains(out.String(), "is being drained") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
