package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/hybrid-analyst/agent"
	"github.com/sweetpotato0/hybrid-analyst/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:    apiKey,
		Model:     "gemini-1.5-flash",
		MaxTokens: 1024,
	}
}

// Provider implements the LLMClient interface for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a new Gemini provider. Close releases the underlying client.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := p.client.GenerativeModel(p.config.Model)
	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = float32(*req.Temperature)
	}
	if req.Temperature != nil || temperature > 0 {
		model.SetTemperature(temperature)
	}
	maxTokens := int32(p.config.MaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	system, rest := message.Split(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("gemini request needs at least one non-system message")
	}

	chat := model.StartChat()
	for _, msg := range rest[:len(rest)-1] {
		chat.History = append(chat.History, &genai.Content{
			Role:  roleOf(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	resp, err := chat.SendMessage(ctx, genai.Text(rest[len(rest)-1].Content))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text.String())}
	if resp.UsageMetadata != nil {
		out.Usage = agent.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func roleOf(r message.Role) string {
	if r == message.RoleAssistant {
		return "model"
	}
	return "user"
}
