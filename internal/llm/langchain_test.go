package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rahul/commander/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply   string
	err     error
	lastOpt llms.CallOptions
	prompts []string
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}
	m.lastOpt = o
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tp.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangchainGenerate(t *testing.T) {
	m := &fakeModel{reply: "hello"}
	g := NewLangchainGateway(m, "default-model", nil)

	text, err := g.Generate(context.Background(), GenerateRequest{Model: "qwen2.5:7b", Prompt: "hi", Temperature: 0.4})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "qwen2.5:7b", m.lastOpt.Model)
	assert.Equal(t, 0.4, m.lastOpt.Temperature)
	assert.Equal(t, []string{"hi"}, m.prompts)
	assert.True(t, g.Available(context.Background()))
}

func TestLangchainGenerate_Error(t *testing.T) {
	g := NewLangchainGateway(&fakeModel{err: errors.New("401 unauthorized")}, "m", nil)

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
	assert.False(t, IsUnreachable(err))

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "m", se.Model)
	assert.False(t, g.Available(context.Background()))
}

func TestLangchainGenerate_Deadline(t *testing.T) {
	g := NewLangchainGateway(&fakeModel{err: context.DeadlineExceeded}, "m", nil)
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.True(t, IsUnreachable(err))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	gw, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &OllamaGateway{}, gw)

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	gw, err = NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LangchainGateway{}, gw)

	cfg.LLM.Provider = "carrier-pigeon"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}
