package worldstate

import "strings"

// Tier is a tool material, ordered from worst to best.
type Tier int

const (
	TierNone Tier = iota
	TierWood
	TierStone
	TierGold
	TierIron
	TierDiamond
	TierNetherite
)

var tierNames = [...]string{"none", "wood", "stone", "gold", "iron", "diamond", "netherite"}

func (t Tier) String() string {
	if t < TierNone || t > TierNetherite {
		return "none"
	}
	return tierNames[t]
}

// Initial is the single letter used in cache fingerprints.
func (t Tier) Initial() byte { return t.String()[0] }

// Abbrev is the upper-case letter used in prompts, "-" for none.
func (t Tier) Abbrev() string {
	switch t {
	case TierNetherite:
		return "N"
	case TierDiamond:
		return "D"
	case TierIron:
		return "I"
	case TierGold:
		return "G"
	case TierStone:
		return "S"
	case TierWood:
		return "W"
	}
	return "-"
}

// TierOf guesses the material tier from an item id.
func TierOf(itemID string) Tier {
	switch {
	case strings.Contains(itemID, "netherite"):
		return TierNetherite
	case strings.Contains(itemID, "diamond"):
		return TierDiamond
	case strings.Contains(itemID, "iron"):
		return TierIron
	case strings.Contains(itemID, "gold"):
		return TierGold
	case strings.Contains(itemID, "stone"):
		return TierStone
	case strings.Contains(itemID, "wood"):
		return TierWood
	}
	return TierNone
}

type ToolTiers struct {
	Pickaxe Tier
	Axe     Tier
	Shovel  Tier
	Sword   Tier
}

// ToolTiersOf returns the best tier held for each tool kind.
func ToolTiersOf(items []Item) ToolTiers {
	var t ToolTiers
	for _, it := range items {
		if it.Count <= 0 {
			continue
		}
		tier := TierOf(it.ID)
		switch {
		case strings.Contains(it.ID, "pickaxe"):
			t.Pickaxe = max(t.Pickaxe, tier)
		case strings.Contains(it.ID, "_axe"):
			t.Axe = max(t.Axe, tier)
		case strings.Contains(it.ID, "shovel"):
			t.Shovel = max(t.Shovel, tier)
		case strings.Contains(it.ID, "sword"):
			t.Sword = max(t.Sword, tier)
		}
	}
	return t
}
