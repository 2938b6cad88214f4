package router

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rahul/commander/internal/action"
	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

// builtinAliases maps informal block names to canonical identifiers.
var builtinAliases = map[string]string{
	// ores
	"diamond":        "minecraft:diamond_ore",
	"diamonds":       "minecraft:diamond_ore",
	"diamond ore":    "minecraft:diamond_ore",
	"diamond_ore":    "minecraft:diamond_ore",
	"iron":           "minecraft:iron_ore",
	"iron ore":       "minecraft:iron_ore",
	"iron_ore":       "minecraft:iron_ore",
	"gold":           "minecraft:gold_ore",
	"gold ore":       "minecraft:gold_ore",
	"gold_ore":       "minecraft:gold_ore",
	"coal":           "minecraft:coal_ore",
	"coal ore":       "minecraft:coal_ore",
	"coal_ore":       "minecraft:coal_ore",
	"copper":         "minecraft:copper_ore",
	"copper ore":     "minecraft:copper_ore",
	"copper_ore":     "minecraft:copper_ore",
	"redstone":       "minecraft:redstone_ore",
	"redstone ore":   "minecraft:redstone_ore",
	"redstone_ore":   "minecraft:redstone_ore",
	"lapis":          "minecraft:lapis_ore",
	"lapis lazuli":   "minecraft:lapis_ore",
	"lapis ore":      "minecraft:lapis_ore",
	"lapis_ore":      "minecraft:lapis_ore",
	"emerald":        "minecraft:emerald_ore",
	"emerald ore":    "minecraft:emerald_ore",
	"emerald_ore":    "minecraft:emerald_ore",
	"netherite":      "minecraft:ancient_debris",
	"ancient debris": "minecraft:ancient_debris",
	"ancient_debris": "minecraft:ancient_debris",
	"debris":         "minecraft:ancient_debris",

	// deepslate and nether ores
	"deepslate diamond":     "minecraft:deepslate_diamond_ore",
	"deepslate_diamond_ore": "minecraft:deepslate_diamond_ore",
	"deepslate iron":        "minecraft:deepslate_iron_ore",
	"deepslate_iron_ore":    "minecraft:deepslate_iron_ore",
	"deepslate gold":        "minecraft:deepslate_gold_ore",
	"deepslate_gold_ore":    "minecraft:deepslate_gold_ore",
	"nether gold":           "minecraft:nether_gold_ore",
	"nether_gold_ore":       "minecraft:nether_gold_ore",
	"nether quartz":         "minecraft:nether_quartz_ore",
	"quartz":                "minecraft:nether_quartz_ore",
	"quartz ore":            "minecraft:nether_quartz_ore",

	// generic wood
	"wood":  "minecraft:oak_log",
	"log":   "minecraft:oak_log",
	"logs":  "minecraft:oak_log",
	"tree":  "minecraft:oak_log",
	"trees": "minecraft:oak_log",

	// stone
	"stone":       "minecraft:stone",
	"cobblestone": "minecraft:cobblestone",
	"cobble":      "minecraft:cobblestone",
	"deepslate":   "minecraft:deepslate",

	// crops
	"wheat":     "minecraft:wheat",
	"carrot":    "minecraft:carrots",
	"carrots":   "minecraft:carrots",
	"potato":    "minecraft:potatoes",
	"potatoes":  "minecraft:potatoes",
	"beetroot":  "minecraft:beetroots",
	"beetroots": "minecraft:beetroots",

	// misc
	"sand":     "minecraft:sand",
	"gravel":   "minecraft:gravel",
	"clay":     "minecraft:clay",
	"obsidian": "minecraft:obsidian",
	"dirt":     "minecraft:dirt",
	"grass":    "minecraft:grass_block",
}

var woodTypes = []string{"oak", "birch", "spruce", "jungle", "acacia", "dark oak", "mangrove", "cherry"}

func init() {
	for _, w := range woodTypes {
		id := "minecraft:" + strings.ReplaceAll(w, " ", "_") + "_log"
		for _, form := range []string{w, w + " log", w + " logs", w + " wood", strings.ReplaceAll(w, " ", "_") + "_log"} {
			builtinAliases[form] = id
		}
	}
}

var (
	validName = regexp.MustCompile(`^[a-z0-9 _:\-]+$`)
	suffixes  = []string{" ore", " logs", " log", " wood"}
)

// stopwords mark a captured phrase as conversational rather than a block name.
var stopwords = map[string]bool{
	"me": true, "some": true, "a": true, "an": true, "the": true, "my": true,
	"to": true, "for": true, "of": true, "and": true, "all": true, "it": true,
	"them": true, "us": true, "you": true, "i": true,
}

// AliasTable resolves free-text block names to canonical identifiers.
type AliasTable struct {
	mu      sync.RWMutex
	entries map[string]string
	keys    []string
}

// NewAliasTable returns a table seeded with the built-in aliases.
func NewAliasTable() *AliasTable {
	t := &AliasTable{entries: make(map[string]string, len(builtinAliases))}
	for k, v := range builtinAliases {
		t.entries[k] = v
	}
	t.reindex()
	return t
}

type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliasFile returns the built-in table overlaid with a YAML file of the
// form `aliases: {name: id}`. A missing path yields the built-in table.
func LoadAliasFile(path string) (*AliasTable, error) {
	t := NewAliasTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	for name, id := range f.Aliases {
		t.Add(name, id)
	}
	return t, nil
}

// Add registers or replaces an alias.
func (t *AliasTable) Add(name, id string) {
	name = normalizeName(name)
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = action.NormalizeID(id)
	t.reindex()
}

// Len reports the number of aliases.
func (t *AliasTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *AliasTable) reindex() {
	t.keys = t.keys[:0]
	for k := range t.entries {
		t.keys = append(t.keys, k)
	}
	sort.Strings(t.keys)
}

// aliasSource adapts the sorted key list for fuzzy matching.
type aliasSource []string

func (s aliasSource) String(i int) string { return s[i] }
func (s aliasSource) Len() int            { return len(s) }

// Resolve maps name to an identifier. The second result is false when the
// name does not look like a block name and the caller should fall through.
func (t *AliasTable) Resolve(name string) (string, bool) {
	n := normalizeName(name)
	if n == "" || !validName.MatchString(n) {
		return "", false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if id, ok := t.entries[n]; ok {
		return id, true
	}
	if strings.Contains(n, ":") {
		return n, true
	}
	for _, v := range variants(n) {
		if id, ok := t.entries[v]; ok {
			return id, true
		}
	}

	words := strings.Fields(n)
	if len(words) > 2 {
		return "", false
	}
	for _, w := range words {
		if stopwords[w] {
			return "", false
		}
	}

	if id, ok := t.fuzzyLookup(n); ok {
		return id, true
	}
	return action.NormalizeID(n), true
}

// fuzzyLookup recovers small typos such as "dimonds" or "obsidan".
func (t *AliasTable) fuzzyLookup(n string) (string, bool) {
	if len(n) < 4 {
		return "", false
	}
	for _, m := range fuzzy.FindFrom(n, aliasSource(t.keys)) {
		if len(m.Str)-len(n) <= 2 {
			return t.entries[m.Str], true
		}
	}
	return "", false
}

func variants(n string) []string {
	out := []string{strings.ReplaceAll(n, "_", " ")}
	base := out[0]
	for _, s := range suffixes {
		if strings.HasSuffix(base, s) {
			out = append(out, strings.TrimSuffix(base, s))
		}
	}
	for _, v := range append([]string(nil), out...) {
		switch {
		case strings.HasSuffix(v, "es") && len(v) > 3:
			out = append(out, strings.TrimSuffix(v, "es"), strings.TrimSuffix(v, "s"))
		case strings.HasSuffix(v, "s") && len(v) > 2:
			out = append(out, strings.TrimSuffix(v, "s"))
		}
	}
	return out
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
