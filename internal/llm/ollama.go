package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rahul/commander/internal/observability"
)

const (
	DefaultOllamaURL = "http://127.0.0.1:11434"
	maxErrorBody     = 4 << 10
	availableTimeout = 5 * time.Second
)

var ErrPullInProgress = errors.New("a model pull is already running")

// OllamaGateway talks to the Ollama HTTP API directly.
type OllamaGateway struct {
	baseURL string
	client  *http.Client
	logger  *observability.Logger

	pullMu  sync.Mutex
	pulling string
}

type OllamaOption func(*OllamaGateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(g *OllamaGateway) { g.client = c }
}

// WithLogger records every generate call as an llm event.
func WithLogger(l *observability.Logger) OllamaOption {
	return func(g *OllamaGateway) { g.logger = l }
}

func NewOllamaGateway(baseURL string, opts ...OllamaOption) *OllamaGateway {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	g := &OllamaGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OllamaGateway) BaseURL() string { return g.baseURL }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate posts a non-streaming completion request to /api/generate.
func (g *OllamaGateway) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	start := time.Now()

	body, err := json.Marshal(generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: generateOptions{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		err = &ServiceError{Model: req.Model, Unreachable: true, Err: err}
		g.log(req, "", start, err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &ServiceError{Model: req.Model, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		g.log(req, "", start, err)
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		se := &ServiceError{Model: req.Model, Err: fmt.Errorf("decode response: %w", err)}
		if ctx.Err() != nil {
			se.Unreachable = true
		}
		g.log(req, "", start, se)
		return "", se
	}

	g.log(req, out.Response, start, nil)
	return out.Response, nil
}

func (g *OllamaGateway) log(req GenerateRequest, response string, start time.Time, err error) {
	if g.logger == nil {
		return
	}
	g.logger.LogLLM(req.Model, req.Prompt, response, time.Since(start), err)
}

// Available reports whether /api/tags answers with 200.
func (g *OllamaGateway) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availableTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ModelInfo is one entry of /api/tags.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels returns the models installed on the server.
func (g *OllamaGateway) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Unreachable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServiceError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return out.Models, nil
}

// HasModel reports whether model is installed. A missing tag matches ":latest".
func (g *OllamaGateway) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := g.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := withTag(model)
	for _, m := range models {
		if withTag(m.Name) == want {
			return true, nil
		}
	}
	return false, nil
}

func withTag(name string) string {
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// PullProgress is one line of the /api/pull stream.
type PullProgress struct {
	Model     string
	Status    string
	Completed int64
	Total     int64
	Percent   int
}

type pullLine struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// Pull downloads a model, reporting streamed progress. Only one pull may run
// at a time per gateway.
func (g *OllamaGateway) Pull(ctx context.Context, model string, progress func(PullProgress)) error {
	g.pullMu.Lock()
	if g.pulling != "" {
		current := g.pulling
		g.pullMu.Unlock()
		return fmt.Errorf("%w: %s", ErrPullInProgress, current)
	}
	g.pulling = model
	g.pullMu.Unlock()
	defer func() {
		g.pullMu.Lock()
		g.pulling = ""
		g.pullMu.Unlock()
	}()

	body, _ := json.Marshal(map[string]any{"name": model, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &ServiceError{Model: model, Unreachable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServiceError{Model: model, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var pl pullLine
		if err := json.Unmarshal(line, &pl); err != nil {
			continue
		}
		if pl.Error != "" {
			return &ServiceError{Model: model, Err: errors.New(pl.Error)}
		}
		p := PullProgress{Model: model, Status: pl.Status, Completed: pl.Completed, Total: pl.Total}
		if pl.Total > 0 {
			p.Percent = int(pl.Completed * 100 / pl.Total)
		}
		if progress != nil {
			progress(p)
		}
		if pl.Status == "success" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &ServiceError{Model: model, Unreachable: true, Err: err}
	}
	return &ServiceError{Model: model, Err: errors.New("pull stream ended without success")}
}

// Pulling returns the model currently being pulled, if any.
func (g *OllamaGateway) Pulling() string {
	g.pullMu.Lock()
	defer g.pullMu.Unlock()
	return g.pulling
}
