package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"rd-prediction-backend/internal/llm"
)

const testBaseURL = "https://llm.test/v1"

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "gemini", model: "gemini-2.0-flash", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	if _, err := NewClient(Options{Provider: ProviderGemini}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewClient(Options{Provider: "claude", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}

	c, err := NewClient(Options{Provider: ProviderGemini, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Model() != defaultGeminiModel {
		t.Fatalf("expected default gemini model, got %q", c.Model())
	}
	c, err = NewClient(Options{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-5-mini"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Model() != "gpt-5-mini" {
		t.Fatalf("expected explicit model, got %q", c.Model())
	}
}

func TestInterpretSendsPromptAndReturnsContent(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header %q", got)
			}
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &captured)
			resp := httpmock.NewStringResponse(http.StatusOK, `{
				"id": "cmpl-1",
				"object": "chat.completion",
				"model": "gemini-2.0-flash",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Findings consistent with pneumonia.  "}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 50, "completion_tokens": 8, "total_tokens": 58}
			}`)
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})

	c, err := NewClient(Options{Provider: ProviderGemini, APIKey: "test-key", BaseURL: testBaseURL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.Interpret(context.Background(), llm.InterpretInput{
		ModelKey:       "pneumonia",
		PredictedClass: "Pneumonia",
		Confidence:     0.91,
		Category:       "chest-xray",
	})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got != "Findings consistent with pneumonia." {
		t.Fatalf("unexpected content %q", got)
	}
	if captured["model"] != defaultGeminiModel {
		t.Fatalf("unexpected model in request: %v", captured["model"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, "Predicted class: Pneumonia") {
		t.Fatalf("user prompt missing prediction: %q", content)
	}
}

func TestInterpretSurfacesAPIError(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":{"message":"upstream down","type":"server_error"}}`))

	c, err := NewClient(Options{Provider: ProviderOpenAI, APIKey: "k", BaseURL: testBaseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Interpret(context.Background(), llm.InterpretInput{ModelKey: "pneumonia"}); err == nil {
		t.Fatalf("expected error from failing upstream")
	}
}

func TestInterpretRejectsEmptyChoices(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`))

	c, err := NewClient(Options{Provider: ProviderOpenAI, APIKey: "k", BaseURL: testBaseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Interpret(context.Background(), llm.InterpretInput{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
