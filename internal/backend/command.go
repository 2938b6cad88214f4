package backend

import (
	"fmt"
	"strings"

	"github.com/rahul/commander/internal/observability"
)

// CommandSink delivers a command line to the game client.
type CommandSink interface {
	Send(command string) error
}

// StatusSource reports what the game client last told us.
type StatusSource interface {
	Connected() bool
	Pathing() bool
}

// CommandBackend speaks Baritone's chat command language ("#goto 1 64 2").
// Inventory operations use '@' commands that the bridge mod handles
// client side.
type CommandBackend struct {
	sink   CommandSink
	status StatusSource
	prefix string
	logger *observability.Logger
}

type CommandOption func(*CommandBackend)

// WithPrefix changes the Baritone command prefix (default "#").
func WithPrefix(p string) CommandOption {
	return func(b *CommandBackend) { b.prefix = p }
}

func WithCommandLogger(l *observability.Logger) CommandOption {
	return func(b *CommandBackend) { b.logger = l }
}

func NewCommandBackend(sink CommandSink, status StatusSource, opts ...CommandOption) *CommandBackend {
	b := &CommandBackend{sink: sink, status: status, prefix: "#"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CommandBackend) IsAvailable() bool { return b.status.Connected() }
func (b *CommandBackend) IsPathing() bool   { return b.status.Pathing() }

func (b *CommandBackend) Stop() {
	b.baritone("stop")
}

func (b *CommandBackend) MoveTo(x, y, z int) bool {
	return b.baritone(fmt.Sprintf("goto %d %d %d", x, y, z))
}

func (b *CommandBackend) MoveToXZ(x, z int) bool {
	return b.baritone(fmt.Sprintf("goto %d %d", x, z))
}

func (b *CommandBackend) MoveToLandmark(id string) bool {
	return b.baritone("goto " + bare(id))
}

func (b *CommandBackend) Harvest(id string, count int) bool {
	if count > 0 {
		return b.baritone(fmt.Sprintf("mine %d %s", count, bare(id)))
	}
	return b.baritone("mine " + bare(id))
}

func (b *CommandBackend) FollowEntity(id string) bool {
	return b.baritone("follow entity " + bare(id))
}

func (b *CommandBackend) FollowPlayer(name string) bool {
	return b.baritone("follow player " + name)
}

func (b *CommandBackend) Patrol(x, z, _ int) bool {
	return b.baritone(fmt.Sprintf("explore %d %d", x, z))
}

func (b *CommandBackend) Cultivate(rng int) bool {
	if rng > 0 {
		return b.baritone(fmt.Sprintf("farm %d", rng))
	}
	return b.baritone("farm")
}

func (b *CommandBackend) SelectSlot(slot int) bool {
	return b.send(fmt.Sprintf("@select %d", slot))
}

func (b *CommandBackend) SelectItem(id string) bool {
	return b.send("@select " + id)
}

func (b *CommandBackend) DropItem(id string, count int) bool {
	return b.send(fmt.Sprintf("@drop %s %d", id, count))
}

// pathingMarker is implemented by status sources that accept an optimistic
// pathing flag until the game reports the real one.
type pathingMarker interface {
	MarkPathing(bool)
}

func (b *CommandBackend) baritone(cmd string) bool {
	if !b.send(b.prefix + cmd) {
		return false
	}
	if m, ok := b.status.(pathingMarker); ok {
		m.MarkPathing(cmd != "stop")
	}
	return true
}

func (b *CommandBackend) send(line string) bool {
	if !b.status.Connected() {
		return false
	}
	if err := b.sink.Send(line); err != nil {
		b.logger.Warnf("backend command %q failed: %v", line, err)
		return false
	}
	b.logger.Infof("backend command: %s", line)
	return true
}

// bare strips the namespace; Baritone wants "diamond_ore".
func bare(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}
