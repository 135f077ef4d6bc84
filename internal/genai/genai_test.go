package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/Recommendy/internal/tone"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func reply(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	mock := &mockChatService{resp: reply("Hello World")}
	client := &Client{chat: mock, model: "test-model"}
	out, err := client.GeneratePromptWithContext(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if mock.params.Model != "test-model" || len(mock.params.Messages) != 2 {
		t.Errorf("unexpected params: model=%q messages=%d", mock.params.Model, len(mock.params.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePromptWithContext(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GeneratePromptWithContext(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil || cli.model != "gpt-test" {
		t.Errorf("unexpected client: %+v", cli)
	}
}

func TestScorer_ParsesReply(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: reply("```json\n{\"polarity\": 0.8, \"subjectivity\": 0.6}\n```")}}
	p, err := NewScorer(client, nil).Score(context.Background(), "what a lovely day")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if p.Polarity != 0.8 || p.Subjectivity != 0.6 {
		t.Errorf("Score() = %+v", p)
	}
	if tone.Classify(p) != "happy" {
		t.Errorf("expected happy classification for %+v", p)
	}
}

func TestScorer_ClampsOutOfRange(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: reply(`{"polarity": -3, "subjectivity": 7}`)}}
	p, err := NewScorer(client, nil).Score(context.Background(), "awful")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if p.Polarity != -1 || p.Subjectivity != 1 {
		t.Errorf("Score() = %+v, want clamped", p)
	}
}

func TestScorer_FallsBackOnBadReply(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: reply("I think it's positive")}}
	p, err := NewScorer(client, tone.NewLexiconScorer()).Score(context.Background(), "I feel sad and tired")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if tone.Classify(p) != "sad" {
		t.Errorf("fallback should score sad, got %+v", p)
	}
}

func TestScorer_ErrorWithoutFallback(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("down")}}
	if _, err := NewScorer(client, nil).Score(context.Background(), "hi"); err == nil {
		t.Error("expected error without fallback")
	}
}
