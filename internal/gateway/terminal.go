package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/observability"
	"golang.org/x/term"
)

// TerminalGateway is a local REPL. On a real terminal it uses x/term line
// editing; piped input is read line by line.
type TerminalGateway struct {
	brain  agent.Brain
	in     io.Reader
	out    io.Writer
	prompt string
	logger *observability.Logger

	mu   sync.Mutex
	line *term.Terminal
}

func NewTerminalGateway(brain agent.Brain, in io.Reader, out io.Writer, logger *observability.Logger) *TerminalGateway {
	return &TerminalGateway{brain: brain, in: in, out: out, prompt: "> ", logger: logger}
}

func (t *TerminalGateway) Name() string { return "term" }

func (t *TerminalGateway) chatID() string { return ChatID(t.Name(), "local") }

func (t *TerminalGateway) Start(ctx context.Context) error {
	if f, ok := t.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return t.interactive(ctx, f)
	}
	return t.piped(ctx)
}

func (t *TerminalGateway) interactive(ctx context.Context, f *os.File) error {
	state, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		return t.piped(ctx)
	}
	defer term.Restore(int(f.Fd()), state)

	t.mu.Lock()
	t.line = term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{f, t.out}, t.prompt)
	t.mu.Unlock()

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		for {
			l, err := t.line.ReadLine()
			if err != nil {
				errs <- err
				return
			}
			lines <- l
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if err == io.EOF {
				return nil
			}
			return err
		case l := <-lines:
			if t.handle(ctx, l) {
				return nil
			}
		}
	}
}

func (t *TerminalGateway) piped(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if t.handle(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one line and reports whether the REPL should exit.
func (t *TerminalGateway) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false
	case "exit", "quit":
		return true
	}

	reply, err := t.brain.Think(ctx, t.chatID(), line)
	if err != nil {
		t.logger.Errorf("Error thinking: %v", err)
		reply = "error: " + err.Error()
	}
	if reply != "" {
		_ = t.Send(t.chatID(), reply)
	}
	return false
}

func (t *TerminalGateway) Send(chatID string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	text = Sanitize(text)
	if t.line != nil {
		_, err := fmt.Fprintf(t.line, "%s\n", text)
		return err
	}
	_, err := fmt.Fprintln(t.out, text)
	return err
}

func (t *TerminalGateway) Stop() error { return nil }
