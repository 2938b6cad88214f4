package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"model": got.Model, "response": `{"intent":"halt"}`, "done": true})
	}))
	defer server.Close()

	g := NewOllamaGateway(server.URL)
	text, err := g.Generate(context.Background(), GenerateRequest{
		Model:       "llama3.2:3b",
		Prompt:      "classify",
		Temperature: 0.3,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"halt"}`, text)

	assert.Equal(t, "llama3.2:3b", got.Model)
	assert.Equal(t, "classify", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.3, got.Options.Temperature)
}

func TestOllamaGenerate_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllamaGateway(server.URL).Generate(context.Background(), GenerateRequest{Model: "nope"})
	require.Error(t, err)

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.True(t, errors.Is(err, ErrInference))
	assert.False(t, IsUnreachable(err), "a status error is not an outage")
}

func TestOllamaGenerate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewOllamaGateway(url).Generate(context.Background(), GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInference))
	assert.True(t, IsUnreachable(err))
}

func TestOllamaGenerate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := NewOllamaGateway(server.URL).Generate(context.Background(), GenerateRequest{Model: "m", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestOllamaAvailableAndModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:3b","size":1},{"name":"qwen2.5:latest","size":2}]}`)
	}))
	defer server.Close()

	g := NewOllamaGateway(server.URL)
	assert.True(t, g.Available(context.Background()))

	models, err := g.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 2)

	ok, err := g.HasModel(context.Background(), "qwen2.5")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.HasModel(context.Background(), "phi3:mini")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOllamaAvailable_Down(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	assert.False(t, NewOllamaGateway(server.URL).Available(context.Background()))
}

func TestOllamaPull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:x","total":200,"completed":50}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:x","total":200,"completed":200}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer server.Close()

	var updates []PullProgress
	err := NewOllamaGateway(server.URL).Pull(context.Background(), "phi3:mini", func(p PullProgress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	require.Len(t, updates, 4)
	assert.Equal(t, 25, updates[1].Percent)
	assert.Equal(t, 100, updates[2].Percent)
	assert.Equal(t, "success", updates[3].Status)
}

func TestOllamaPull_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	}))
	defer server.Close()

	err := NewOllamaGateway(server.URL).Pull(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file does not exist")
}

func TestOllamaPull_OneAtATime(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer server.Close()

	g := NewOllamaGateway(server.URL)
	done := make(chan error, 1)
	go func() { done <- g.Pull(context.Background(), "a", nil) }()

	require.Eventually(t, func() bool { return g.Pulling() == "a" }, time.Second, 5*time.Millisecond)
	err := g.Pull(context.Background(), "b", nil)
	assert.ErrorIs(t, err, ErrPullInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "", g.Pulling())
}
