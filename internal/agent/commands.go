package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/commander/internal/cache"
)

// cacheAdmin is implemented by planners that own a result cache.
type cacheAdmin interface {
	CacheStats() cache.Stats
	ClearCache()
}

const helpText = `Tell me what to do in plain words, e.g. "mine 10 iron" or "follow Steve".
stop, pause and resume control the running plan.
/status   engine state
/cache    cache stats (/cache clear empties it)
/history  recent instructions`

// slash handles "/" commands. ok=false means input is not one.
func (c *Commander) slash(ctx context.Context, chatID, input string) (reply string, ok bool) {
	if !strings.HasPrefix(input, "/") {
		return "", false
	}
	fields := strings.Fields(strings.ToLower(input))
	// telegram appends the bot name: /status@my_bot
	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")

	switch name {
	case "start", "help":
		return helpText, true
	case "status":
		return c.describe(), true
	case "cache":
		admin, ok := c.planner.(cacheAdmin)
		if !ok {
			return "No plan cache configured.", true
		}
		if len(fields) > 1 && fields[1] == "clear" {
			admin.ClearCache()
			return "Plan cache cleared.", true
		}
		s := admin.CacheStats()
		return fmt.Sprintf("Cache: %d/%d live, %d expired, %d hits, %d misses", s.Live, s.Capacity, s.Expired, s.Hits, s.Misses), true
	case "history":
		return c.history(ctx, chatID), true
	}
	return fmt.Sprintf("Unknown command /%s. Try /help.", name), true
}

func (c *Commander) describe() string {
	st := c.engine.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s", st.State)
	if st.Current != "" {
		fmt.Fprintf(&b, "\nCurrent: %s", st.Current)
	}
	if st.Queue > 0 {
		fmt.Fprintf(&b, "\nQueued: %d", st.Queue)
	}
	if st.Retries > 0 {
		fmt.Fprintf(&b, "\nRetries: %d", st.Retries)
	}
	if st.Question != "" {
		fmt.Fprintf(&b, "\nWaiting for: %s", st.Question)
	}
	if c.dryRun {
		b.WriteString("\nDry run is on")
	}
	return b.String()
}

func (c *Commander) history(ctx context.Context, chatID string) string {
	if c.journal == nil {
		return "No journal configured."
	}
	entries, err := c.journal.Recent(ctx, chatID, 5)
	if err != nil {
		c.logger.Errorf("journal: %v", err)
		return "Could not read the journal."
	}
	if len(entries) == 0 {
		return "Nothing yet."
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s  %-10s %s", e.CreatedAt.Format("15:04:05"), e.Status, e.Instruction)
	}
	return strings.Join(lines, "\n")
}
