package gateway

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Name is the chat ID prefix owned by the gateway.
	Name() string
	// Start runs the message listening loop until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

var ErrNotStarted = errors.New("gateway not started")

// ChatID namespaces a platform-local id with the gateway name.
func ChatID(gateway, id string) string {
	return gateway + ":" + id
}

// SplitChatID is the inverse of ChatID.
func SplitChatID(chatID string) (gateway, id string, ok bool) {
	return strings.Cut(chatID, ":")
}

var strict = bluemonday.StrictPolicy()

// Sanitize strips markup from model-produced text before it is relayed.
func Sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(text)))
}

// Hub routes outgoing messages to the gateway that owns the chat ID.
type Hub struct {
	mu       sync.RWMutex
	gateways map[string]Messenger
}

func NewHub(gateways ...Messenger) *Hub {
	h := &Hub{gateways: make(map[string]Messenger)}
	for _, g := range gateways {
		h.Add(g)
	}
	return h
}

func (h *Hub) Add(g Messenger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gateways[g.Name()] = g
}

// Names lists the registered gateways.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.gateways))
	for n := range h.gateways {
		names = append(names, n)
	}
	return names
}

func (h *Hub) Send(chatID string, text string) error {
	name, _, ok := SplitChatID(chatID)
	if !ok {
		name = chatID
	}
	h.mu.RLock()
	g, found := h.gateways[name]
	h.mu.RUnlock()
	if !found {
		return fmt.Errorf("no gateway for chat %s", chatID)
	}
	text = Sanitize(text)
	if text == "" {
		return nil
	}
	return g.Send(chatID, text)
}

// Start runs every gateway until ctx is done. The first gateway error is
// returned after the others have stopped.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.RLock()
	gateways := make([]Messenger, 0, len(h.gateways))
	for _, g := range h.gateways {
		gateways = append(gateways, g)
	}
	h.mu.RUnlock()

	errs := make(chan error, len(gateways))
	for _, g := range gateways {
		go func(g Messenger) {
			if err := g.Start(ctx); err != nil {
				errs <- fmt.Errorf("%s: %w", g.Name(), err)
				return
			}
			errs <- nil
		}(g)
	}

	var first error
	for range gateways {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *Hub) Stop() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var first error
	for _, g := range h.gateways {
		if err := g.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
