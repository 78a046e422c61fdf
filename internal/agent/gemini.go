package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// contentGenerator is the slice of the genai Models service the agent needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAgent generates text with the Gemini API instead of a local CLI.
type GeminiAgent struct {
	models        contentGenerator
	log           *zap.Logger
	model         string
	timeout       time.Duration
	minLength     int
	previewLength int
}

// NewGeminiAgent creates a Gemini API client from cfg.
func NewGeminiAgent(ctx context.Context, cfg config.Config, log *zap.Logger) (*GeminiAgent, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Agent.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiAgent{
		models:        cli.Models,
		log:           log,
		model:         cfg.Agent.Model,
		timeout:       cfg.AgentTimeout(),
		minLength:     cfg.Agent.MinResponseLength,
		previewLength: cfg.Agent.StdoutPreviewLength,
	}, nil
}

func (g *GeminiAgent) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	display := "gemini:" + g.model
	g.log.Info("calling agent", zap.String("model", g.model), zap.Int("prompt_bytes", len(prompt)))

	resp, err := g.models.GenerateContent(callCtx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		kind := model.ErrExternalAgentFailed
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			kind = model.ErrExternalAgentTimeout
		}
		return "", &model.AgentError{Kind: kind, Command: display, Stderr: err.Error()}
	}

	text := responseText(resp)
	if err := checkResponse(text, g.minLength); err != nil {
		return "", &model.AgentError{Kind: err, Command: display, Preview: model.Preview(text, g.previewLength)}
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
