package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteReturnsResponseText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "what causes a migraine?" {
			t.Errorf("unexpected prompt: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "several factors", Done: true})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	out, err := c.Complete(context.Background(), "what causes a migraine?", Params{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "several factors" {
		t.Errorf("got %q", out)
	}
}

func TestCompleteNonOKStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.Complete(context.Background(), "x", Params{})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestCompletePassesGenerationParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Options["num_predict"] != float64(256) {
			t.Errorf("expected num_predict 256, got %v", req.Options["num_predict"])
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.Complete(context.Background(), "x", Params{MaxTokens: 256})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
}
