package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell/shelltest"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

var longAnswer = strings.Repeat("diff --git a/src/a.js b/src/a.js\n", 3)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TargetDir = "/work"
	return cfg
}

func TestCLIAgentPromptMode(t *testing.T) {
	fake := (&shelltest.Fake{}).On("copilot -p", shelltest.Exit(0, longAnswer))
	a := NewCLIAgent(fake, testConfig(), nil)

	out, err := a.Generate(context.Background(), "Implement slice 1")
	require.NoError(t, err)
	assert.Equal(t, longAnswer, out)

	require.Len(t, fake.Calls, 1)
	call := fake.Calls[0]
	assert.Equal(t, "copilot", call.Name)
	assert.Equal(t, []string{"-p", "Implement slice 1"}, call.Args)
	assert.Equal(t, "/work", call.Dir)
	assert.Equal(t, testConfig().AgentTimeout(), call.Timeout)
	assert.Empty(t, call.Stdin)
}

func TestCLIAgentInteractiveMode(t *testing.T) {
	fake := (&shelltest.Fake{}).On("copilot -i", shelltest.Exit(0, longAnswer))
	a := NewCLIAgent(fake, testConfig(), nil).WithMode(ModeInteractive)

	_, err := a.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Len(t, fake.Calls, 1)
	assert.Equal(t, []string{"-i"}, fake.Calls[0].Args)
	assert.Equal(t, "prompt\n", fake.Calls[0].Stdin)
}

func TestCLIAgentUnknownMode(t *testing.T) {
	fake := &shelltest.Fake{}
	_, err := NewCLIAgent(fake, testConfig(), nil).WithMode("batch").Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Empty(t, fake.Calls)
}

func TestCLIAgentFailures(t *testing.T) {
	tests := []struct {
		name string
		resp shelltest.Response
		kind error
	}{
		{
			name: "non-zero exit",
			resp: shelltest.Response{Result: shell.Result{ExitCode: 2, Stdout: "partial", Stderr: "auth required"}},
			kind: model.ErrExternalAgentFailed,
		},
		{
			name: "timeout",
			resp: shelltest.Response{Result: shell.Result{ExitCode: -1, TimedOut: true, Stdout: longAnswer}, Err: shell.ErrTimeout},
			kind: model.ErrExternalAgentTimeout,
		},
		{
			name: "could not start",
			resp: shelltest.Fail("exec: copilot: not found"),
			kind: model.ErrExternalAgentFailed,
		},
		{
			name: "blank output",
			resp: shelltest.Exit(0, "  \n\t"),
			kind: model.ErrExternalAgentEmptyResponse,
		},
		{
			name: "too short",
			resp: shelltest.Exit(0, "ok, done"),
			kind: model.ErrExternalAgentEmptyResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := (&shelltest.Fake{}).On("copilot", tt.resp)
			_, err := NewCLIAgent(fake, testConfig(), nil).Generate(context.Background(), "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var ae *model.AgentError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, "copilot -p <prompt>", ae.Command)
		})
	}
}

func TestCLIAgentFailureCarriesDiagnostics(t *testing.T) {
	stdout := strings.Repeat("x", 2000)
	fake := (&shelltest.Fake{}).On("copilot", shelltest.Response{
		Result: shell.Result{ExitCode: 3, Stdout: stdout, Stderr: "rate limited\n"},
	})
	_, err := NewCLIAgent(fake, testConfig(), nil).Generate(context.Background(), "p")

	var ae *model.AgentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 3, ae.ExitCode)
	assert.Len(t, ae.Preview, 800)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Contains(t, err.Error(), "(exit 3)")
}

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error
	got  string
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.got = contents[0].Parts[0].Text
	return f.resp, f.err
}

func geminiWith(m contentGenerator) *GeminiAgent {
	return &GeminiAgent{models: m, log: zap.NewNop(), model: "gemini-2.5-flash", minLength: 50, previewLength: 800}
}

func TestGeminiAgent(t *testing.T) {
	m := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: longAnswer[:40]}, {Text: longAnswer[40:]}}}}},
	}}
	out, err := geminiWith(m).Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, longAnswer, out)
	assert.Equal(t, "hello", m.got)
}

func TestGeminiAgentErrors(t *testing.T) {
	_, err := geminiWith(&fakeModels{err: errors.New("quota")}).Generate(context.Background(), "p")
	require.ErrorIs(t, err, model.ErrExternalAgentFailed)

	_, err = geminiWith(&fakeModels{resp: &genai.GenerateContentResponse{}}).Generate(context.Background(), "p")
	require.ErrorIs(t, err, model.ErrExternalAgentEmptyResponse)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Backend = "openai"
	_, err := New(context.Background(), &shelltest.Fake{}, cfg, nil)
	require.Error(t, err)

	cfg.Agent.Backend = "copilot"
	a, err := New(context.Background(), &shelltest.Fake{}, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &CLIAgent{}, a)
}
