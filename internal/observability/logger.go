package observability

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRoute       EventType = "route"
	EventTypeCache       EventType = "cache"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
	EventTypeWarning     EventType = "warning"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	zl         zerolog.Logger
	llmLogPath string
	maxSize    int64
	fileMu     sync.Mutex
}

// Options configures NewLogger.
type Options struct {
	Out    io.Writer
	Dir    string
	Level  string
	Pretty bool
}

func NewLogger(opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = NewTermWriter()
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Logger{
		zl:      zerolog.New(out).Level(level).With().Timestamp().Logger(),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if opts.Dir != "" {
		l.llmLogPath = filepath.Join(opts.Dir, "llm.jsonl")
	}
	return l
}

// Nop returns a logger that writes nowhere.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	e := l.zl.Info()
	if evt.Type == EventTypeWarning {
		e = l.zl.Warn()
	}
	e = e.Str("type", string(evt.Type))
	if evt.ChatID != "" {
		e = e.Str("chat_id", evt.ChatID)
	}
	if evt.RunID != "" {
		e = e.Str("run_id", evt.RunID)
	}
	e.Interface("data", evt.Data).Send()

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zl.Error().Err(err).Msg("failed to marshal llm event")
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zl.Error().Err(err).Msg("failed to create log directory")
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zl.Error().Err(err).Msg("failed to open log file")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zl.Error().Err(err).Msg("failed to write to log file")
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Error().Msgf(format, args...)
}

// Helper methods for common events

func (l *Logger) LogRoute(chatID, instruction, trace string) {
	l.Log(Event{
		Type:   EventTypeRoute,
		ChatID: chatID,
		Data:   map[string]string{"instruction": instruction, "trace": trace},
	})
}

func (l *Logger) LogCache(instruction string, hit bool) {
	l.Log(Event{
		Type: EventTypeCache,
		Data: map[string]any{"instruction": instruction, "hit": hit},
	})
}

func (l *Logger) LogPlan(chatID, runID, source, summary string, actions []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		RunID:  runID,
		Data: map[string]any{
			"source":  source,
			"summary": summary,
			"actions": actions,
		},
	})
}

func (l *Logger) LogStep(runID, action, outcome string, attempt int) {
	l.Log(Event{
		Type:  EventTypeStep,
		RunID: runID,
		Data: map[string]any{
			"action":  action,
			"outcome": outcome,
			"attempt": attempt,
		},
	})
}

func (l *Logger) LogPolicy(chatID, action, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		Data: map[string]string{
			"action": action,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogWarning(msg string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = msg
	l.Log(Event{Type: EventTypeWarning, Data: data})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(model, prompt, response string, elapsed time.Duration, err error) {
	data := map[string]any{
		"model":      model,
		"prompt":     prompt,
		"response":   response,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeLLM, Data: data})
}
