package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type fakeCompleter struct {
	resp  openai.ChatCompletionResponse
	err   error
	calls int
	req   openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.req = req
	return f.resp, f.err
}

func replyWith(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
	}}
}

var testConfig = Config{Model: "gpt-4-turbo-preview", Temperature: 0.7, MaxTokens: 500}

func TestReplyRejectsEmptyInput(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		fc := &fakeCompleter{resp: replyWith("unused")}
		_, err := NewRelay(fc, testConfig).Reply(context.Background(), msg)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("Reply(%q) error = %v, want ErrEmptyMessage", msg, err)
		}
		if fc.calls != 0 {
			t.Fatalf("Reply(%q) made %d upstream calls", msg, fc.calls)
		}
	}
}

func TestReplyReturnsContentVerbatim(t *testing.T) {
	fc := &fakeCompleter{resp: replyWith("Track your top 3 categories.")}
	got, err := NewRelay(fc, testConfig).Reply(context.Background(), "What's my budget?")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if got != "Track your top 3 categories." {
		t.Fatalf("Reply() = %q", got)
	}

	if len(fc.req.Messages) != 2 {
		t.Fatalf("sent %d messages, want system + user only", len(fc.req.Messages))
	}
	sys, user := fc.req.Messages[0], fc.req.Messages[1]
	if sys.Role != openai.ChatMessageRoleSystem || !strings.HasPrefix(sys.Content, "You are a helpful financial assistant.") {
		t.Fatalf("system message = %+v", sys)
	}
	if user.Role != openai.ChatMessageRoleUser || user.Content != "What's my budget?" {
		t.Fatalf("user message = %+v", user)
	}
	if fc.req.Temperature != 0.7 || fc.req.MaxTokens != 500 || fc.req.Model != "gpt-4-turbo-preview" {
		t.Fatalf("request params = %+v", fc.req)
	}
}

func TestReplySendsZeroTemperature(t *testing.T) {
	fc := &fakeCompleter{resp: replyWith("ok")}
	cfg := testConfig
	cfg.Temperature = 0
	if _, err := NewRelay(fc, cfg).Reply(context.Background(), "hi"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if fc.req.Temperature <= 0 || fc.req.Temperature > 1e-30 {
		t.Fatalf("temperature = %v, want a near-zero value that survives omitempty", fc.req.Temperature)
	}
}

func TestReplyFallback(t *testing.T) {
	tests := map[string]openai.ChatCompletionResponse{
		"empty content": replyWith(""),
		"no choices":    {},
	}
	for name, resp := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := NewRelay(&fakeCompleter{resp: resp}, testConfig).Reply(context.Background(), "hi")
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}
			if got != FallbackReply {
				t.Fatalf("Reply() = %q, want fallback", got)
			}
		})
	}
}

func TestReplyUpstreamError(t *testing.T) {
	fc := &fakeCompleter{err: &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}}
	_, err := NewRelay(fc, testConfig).Reply(context.Background(), "hi")

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Reply() error = %v, want *UpstreamError", err)
	}
	if ue.Retryable || ue.UserMessage() != "Failed to process chat message" {
		t.Fatalf("upstream error = %+v", ue)
	}
}

func TestReplyTimeout(t *testing.T) {
	fc := &fakeCompleter{err: context.DeadlineExceeded}
	_, err := NewRelay(fc, testConfig).Reply(context.Background(), "hi")

	var ue *UpstreamError
	if !errors.As(err, &ue) || !ue.Retryable {
		t.Fatalf("Reply() error = %v, want retryable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("UpstreamError should unwrap to the cause")
	}
}

func TestOpenAIClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d", len(req.Messages))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(replyWith("Save 20% of each paycheck."))
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL+"/v1/")
	cfg := testConfig
	cfg.Timeout = 5 * time.Second

	got, err := NewRelay(client, cfg).Reply(context.Background(), "How much should I save?")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if got != "Save 20% of each paycheck." {
		t.Fatalf("Reply() = %q", got)
	}
}

func TestSystemPromptListsCategories(t *testing.T) {
	p := SystemPrompt()
	for _, want := range []string{"savings buckets", "upcoming expenses", "utilities"} {
		if !strings.Contains(p, want) {
			t.Errorf("SystemPrompt() missing %q", want)
		}
	}
}
