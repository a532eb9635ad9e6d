package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/openai/openai-go"
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

func TestGenerate_Success(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Olá! Como posso ajudar?"}},
		},
	}}
	client := &Client{chat: mock, model: "test-model", maxTokens: 100}

	history := []models.Turn{
		{Role: models.RoleUser, Content: "Oi"},
		{Role: models.RoleAssistant, Content: "Olá!"},
		{Role: models.RoleUser, Content: "Qual o cardápio?"},
	}
	out, err := client.Generate(context.Background(), "system prompt", history)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Olá! Como posso ajudar?" {
		t.Errorf("unexpected reply %q", out)
	}
	if len(mock.params.Messages) != 4 {
		t.Fatalf("expected system + 3 history messages, got %d", len(mock.params.Messages))
	}
	if mock.params.Messages[0].OfSystem == nil {
		t.Error("expected the first message to be the system prompt")
	}
	if mock.params.Messages[2].OfAssistant == nil {
		t.Error("expected assistant turn to map to an assistant message")
	}
	if mock.params.Messages[3].OfUser == nil {
		t.Error("expected user turn to map to a user message")
	}
	if string(mock.params.Model) != "test-model" {
		t.Errorf("unexpected model %q", mock.params.Model)
	}
}

func TestGenerate_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Generate(context.Background(), "sys", nil)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}}}
	_, err := client.Generate(context.Background(), "sys", nil)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"), WithMaxTokens(50))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-4o" || cli.maxTokens != 50 {
		t.Errorf("options not applied: model=%q maxTokens=%d", cli.model, cli.maxTokens)
	}
}
