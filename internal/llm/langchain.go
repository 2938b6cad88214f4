package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rahul/commander/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// LangchainGateway adapts any langchaingo model to Gateway.
type LangchainGateway struct {
	model  llms.Model
	name   string
	logger *observability.Logger
}

func NewLangchainGateway(model llms.Model, name string, logger *observability.Logger) *LangchainGateway {
	return &LangchainGateway{model: model, name: name, logger: logger}
}

func (g *LangchainGateway) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	start := time.Now()

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
		},
	}
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	resp, err := g.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		se := &ServiceError{Model: g.modelName(req), Err: err, Unreachable: unreachable(ctx, err)}
		g.log(req, "", start, se)
		return "", se
	}
	if len(resp.Choices) == 0 {
		se := &ServiceError{Model: g.modelName(req), Err: errors.New("empty response")}
		g.log(req, "", start, se)
		return "", se
	}

	text := resp.Choices[0].Content
	g.log(req, text, start, nil)
	return text, nil
}

// Available sends a one-token request.
func (g *LangchainGateway) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availableTimeout)
	defer cancel()
	_, err := llms.GenerateFromSinglePrompt(ctx, g.model, "ping", llms.WithMaxTokens(1))
	return err == nil
}

func (g *LangchainGateway) modelName(req GenerateRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.name
}

func (g *LangchainGateway) log(req GenerateRequest, response string, start time.Time, err error) {
	if g.logger == nil {
		return
	}
	g.logger.LogLLM(g.modelName(req), req.Prompt, response, time.Since(start), err)
}

func unreachable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
