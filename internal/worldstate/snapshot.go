// Package worldstate keeps the latest view of the controlled agent and
// renders it into the small text block embedded in planning prompts.
package worldstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/cache"
)

const (
	DefaultTokenBudget = 500
	maxInventoryItems  = 8
	maxEntities        = 8
	maxBlocks          = 12
	maxFailureRunes    = 80
)


type Item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Slot  int    `json:"slot"`
}

// Entity categories in display priority order.
const (
	CategoryPlayer  = "player"
	CategoryHostile = "hostile"
	CategoryAnimal  = "animal"
	CategoryMob     = "mob"
)

type Entity struct {
	Type     string  `json:"type"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category"`
	Distance float64 `json:"distance"`
}

type Block struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

type BackendStatus struct {
	Available bool `json:"available"`
	Pathing   bool `json:"pathing"`
}

// Snapshot is one observation of the agent, as pushed by the game bridge.
type Snapshot struct {
	Dimension   string          `json:"dim"`
	Position    action.Position `json:"pos"`
	Health      float64         `json:"hp"`
	Food        int             `json:"food"`
	Inventory   []Item          `json:"inv"`
	Entities    []Entity        `json:"entities"`
	Blocks      []Block         `json:"blocks"`
	Backend     *BackendStatus  `json:"backend,omitempty"`
	LastFailure string          `json:"last_failure,omitempty"`
}

// Compact renders the snapshot in at most maxTokens tokens, dropping the
// least useful sections first: nearby blocks, then entities, then inventory.
func (s Snapshot) Compact(maxTokens int, count TokenCounter) string {
	if count == nil {
		count = ApproxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultTokenBudget
	}

	x, y, z := s.Position.Block()
	header := fmt.Sprintf("Dim:%s Pos:%d,%d,%d HP:%d/20 Food:%d/20", shortID(s.Dimension), x, y, z, int(s.Health+0.5), s.Food)
	tools := "Tools: " + s.toolsCompact()

	type section struct {
		label string
		lines []string
	}
	optional := []section{
		{"Inv: ", s.inventoryCompact()},
		{"Near: ", s.entitiesCompact()},
		{"Blocks: ", s.blocksCompact()},
	}

	var tail []string
	if s.Backend != nil && s.Backend.Available {
		st := "idle"
		if s.Backend.Pathing {
			st = "pathing"
		}
		tail = append(tail, "Backend: "+st)
	}
	if s.LastFailure != "" {
		tail = append(tail, "LastErr: "+truncateRunes(s.LastFailure, maxFailureRunes))
	}

	render := func() string {
		lines := []string{header, tools}
		for _, sec := range optional {
			if len(sec.lines) > 0 {
				lines = append(lines, sec.label+strings.Join(sec.lines, ", "))
			}
		}
		lines = append(lines, tail...)
		return strings.Join(lines, "\n")
	}

	out := render()
	// drop entries from the back of the lowest-priority section until it fits
	for i := len(optional) - 1; i >= 0 && count(out) > maxTokens; i-- {
		for len(optional[i].lines) > 0 && count(out) > maxTokens {
			optional[i].lines = optional[i].lines[:len(optional[i].lines)-1]
			out = render()
		}
	}
	return out
}

func (s Snapshot) toolsCompact() string {
	t := ToolTiersOf(s.Inventory)
	return fmt.Sprintf("pick:%s axe:%s shovel:%s", t.Pickaxe.Abbrev(), t.Axe.Abbrev(), t.Shovel.Abbrev())
}

func (s Snapshot) inventoryCompact() []string {
	totals := make(map[string]int)
	for _, it := range s.Inventory {
		if it.Count > 0 {
			totals[shortID(it.ID)] += it.Count
		}
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if totals[ids[i]] != totals[ids[j]] {
			return totals[ids[i]] > totals[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > maxInventoryItems {
		ids = ids[:maxInventoryItems]
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%sx%d", id, totals[id])
	}
	return out
}

func categoryRank(c string) int {
	switch c {
	case CategoryPlayer:
		return 0
	case CategoryHostile:
		return 1
	case CategoryAnimal:
		return 2
	default:
		return 3
	}
}

func (s Snapshot) entitiesCompact() []string {
	ents := append([]Entity(nil), s.Entities...)
	sort.SliceStable(ents, func(i, j int) bool {
		ri, rj := categoryRank(ents[i].Category), categoryRank(ents[j].Category)
		if ri != rj {
			return ri < rj
		}
		return ents[i].Distance < ents[j].Distance
	})
	if len(ents) > maxEntities {
		ents = ents[:maxEntities]
	}
	out := make([]string, len(ents))
	for i, e := range ents {
		name := shortID(e.Type)
		if e.Category == CategoryPlayer && e.Name != "" {
			name = e.Name
		}
		out[i] = fmt.Sprintf("%s@%dm", name, int(e.Distance+0.5))
	}
	return out
}

func (s Snapshot) blocksCompact() []string {
	blocks := append([]Block(nil), s.Blocks...)
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Distance < blocks[j].Distance })
	seen := make(map[string]bool)
	var out []string
	for _, b := range blocks {
		id := shortID(b.ID)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, fmt.Sprintf("%s@%dm", id, int(b.Distance+0.5)))
		if len(out) == maxBlocks {
			break
		}
	}
	return out
}

// Fingerprint derives the coarse cache context from the snapshot.
func (s Snapshot) Fingerprint() cache.Fingerprint {
	t := ToolTiersOf(s.Inventory)
	distinct := make(map[string]bool)
	total := 0
	for _, it := range s.Inventory {
		if it.Count > 0 {
			distinct[it.ID] = true
			total += it.Count
		}
	}
	return cache.Fingerprint{
		Dimension:       s.Dimension,
		ToolTiers:       fmt.Sprintf("%c/%c/%c", t.Pickaxe.Initial(), t.Axe.Initial(), t.Shovel.Initial()),
		InventoryBucket: fmt.Sprintf("%d:%d", len(distinct), total/10),
	}
}

func shortID(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
