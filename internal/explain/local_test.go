package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLocalModelParaphrase(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "This site sends card data to the cloud."}},
			},
		})
	}))
	defer srv.Close()

	m := NewLocalModel(srv.URL, "tiny-rephrase", "secret", time.Second, 0)
	text, err := m.Paraphrase(context.Background(), "reword this")
	if err != nil {
		t.Fatalf("Paraphrase: %v", err)
	}
	if text != "This site sends card data to the cloud." {
		t.Fatalf("text = %q", text)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotReq.Model != "tiny-rephrase" || len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "reword this" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestLocalModelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model loading", "type": "unavailable"},
		})
	}))
	defer srv.Close()

	m := NewLocalModel(srv.URL, "", "", time.Second, 0)
	if _, err := m.Paraphrase(context.Background(), "reword"); err == nil {
		t.Fatal("want error on 503")
	} else if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("err = %v", err)
	}
}

func TestLocalModelEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	m := NewLocalModel(srv.URL, "", "", time.Second, 0)
	if _, err := m.Paraphrase(context.Background(), "reword"); err == nil {
		t.Fatal("want error on empty choices")
	}
}

func TestLocalModelResponseCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + strings.Repeat("a", 256) + `"}}]}`))
	}))
	defer srv.Close()

	m := NewLocalModel(srv.URL, "", "", time.Second, 64)
	if _, err := m.Paraphrase(context.Background(), "reword"); err == nil {
		t.Fatal("want error when response exceeds cap")
	}
}
