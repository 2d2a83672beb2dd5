package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

var suggestVocab = []string{"achievement", "bonding", "leisure", "nature"}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-chat",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestSuggester(url string) *Suggester {
	return NewSuggester(&Config{
		APIKey:  "test-key",
		BaseURL: url,
		Logger:  zap.NewNop(),
	}, "test-chat")
}

func TestSuggester_SuggestLabel(t *testing.T) {
	server := chatServer(t, `{"label":"nature","explanation":"a walk in the woods"}`)
	defer server.Close()

	label, err := newTestSuggester(server.URL).SuggestLabel(context.Background(), "went hiking", suggestVocab)
	if err != nil {
		t.Fatalf("SuggestLabel: %v", err)
	}
	if label != "nature" {
		t.Errorf("label = %q, want nature", label)
	}
}

func TestSuggester_ToleratesCodeFences(t *testing.T) {
	server := chatServer(t, "```json\n{\"label\":\"Bonding\",\"explanation\":\"friends\"}\n```")
	defer server.Close()

	label, err := newTestSuggester(server.URL).SuggestLabel(context.Background(), "dinner with friends", suggestVocab)
	if err != nil {
		t.Fatalf("SuggestLabel: %v", err)
	}
	if label != "bonding" {
		t.Errorf("label = %q, want bonding (case-normalized)", label)
	}
}

func TestSuggester_RejectsUnknownLabel(t *testing.T) {
	server := chatServer(t, `{"label":"sleeping","explanation":"nap"}`)
	defer server.Close()

	if _, err := newTestSuggester(server.URL).SuggestLabel(context.Background(), "slept all day", suggestVocab); err == nil {
		t.Fatal("expected an error for an out-of-vocabulary label")
	}
}

func TestSuggester_RejectsMalformedJSON(t *testing.T) {
	server := chatServer(t, "definitely nature")
	defer server.Close()

	if _, err := newTestSuggester(server.URL).SuggestLabel(context.Background(), "went hiking", suggestVocab); err == nil {
		t.Fatal("expected an error for a non-JSON reply")
	}
}
