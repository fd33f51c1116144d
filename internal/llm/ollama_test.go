package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ollamaServer(t *testing.T, response string, handler func(r ollamaRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if handler != nil {
			handler(req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           req.Model,
			Response:        response,
			Done:            true,
			PromptEvalCount: 120,
			EvalCount:       80,
		})
	}))
}

func TestOllamaProvider_Draft(t *testing.T) {
	var got ollamaRequest
	server := ollamaServer(t, "The denial misreads the filing policy [1]. Coverage applies [2].",
		func(r ollamaRequest) { got = r })
	defer server.Close()

	p, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b", StrictGrounding: true})
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}

	resp, err := p.Draft(context.Background(), DraftRequest{
		Decision:  draftDecision(),
		Citations: draftCitations(),
	})
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	if got.Stream {
		t.Error("request should disable streaming")
	}
	if got.System != systemPrompt {
		t.Errorf("system prompt not forwarded: %q", got.System)
	}
	if !strings.Contains(got.Prompt, "[1] (policy)") {
		t.Error("default prompt not built from citations")
	}
	if len(resp.CitedMarkers) != 2 {
		t.Errorf("CitedMarkers = %v, want [1 2]", resp.CitedMarkers)
	}
	if resp.TokensUsed != 200 {
		t.Errorf("TokensUsed = %d, want 200", resp.TokensUsed)
	}
}

func TestOllamaProvider_RequiresModel(t *testing.T) {
	p, err := NewOllamaProvider(Config{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}
	if _, err := p.Draft(context.Background(), DraftRequest{Citations: draftCitations()}); err == nil {
		t.Error("expected error when no model is configured")
	}
}

func TestOllamaProvider_GroundingLeakRejected(t *testing.T) {
	server := ollamaServer(t, "As established by [7], the claim is valid.", nil)
	defer server.Close()

	p, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "mistral", StrictGrounding: true})
	_, err := p.Draft(context.Background(), DraftRequest{Citations: draftCitations()})
	if err == nil {
		t.Fatal("expected grounding rejection")
	}
	if !strings.Contains(err.Error(), "[7]") {
		t.Errorf("error should name the leaking marker: %v", err)
	}
}

func TestOllamaProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ollamaError{Error: "model 'missing' not found"})
	}))
	defer server.Close()

	p, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "missing"})
	_, err := p.Draft(context.Background(), DraftRequest{Citations: draftCitations()})
	if err == nil {
		t.Fatal("expected API error")
	}
	if !strings.Contains(err.Error(), "model 'missing' not found") {
		t.Errorf("error should carry the API message: %v", err)
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	p, _ := NewOllamaProvider(Config{BaseURL: server.URL})
	if !p.IsAvailable(context.Background()) {
		t.Error("expected available against a responding server")
	}

	down, _ := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1"})
	if down.IsAvailable(context.Background()) {
		t.Error("expected unavailable against a closed port")
	}
}
