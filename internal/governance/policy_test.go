package governance

import (
	"context"
	"testing"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Allow by default
	res, err := engine.Evaluate(ctx, Request{Action: action.Harvest{ResourceID: "minecraft:stone", Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)

	// Deny by kind
	engine.DenyKind(action.KindDrop)
	res, err = engine.Evaluate(ctx, Request{Action: action.Drop{ItemID: "minecraft:diamond", Count: 1}})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)

	// Deny by subject
	require.NoError(t, engine.DenySubject(`diamond`))
	res, err = engine.Evaluate(ctx, Request{Action: action.MoveToLandmark{LandmarkID: "minecraft:diamond_block"}})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Contains(t, res.Reason, "minecraft:diamond_block")

	// Actions without a subject are never matched by patterns
	res, err = engine.Evaluate(ctx, Request{Action: action.MoveTo{X: 1, Z: 2}})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)

	assert.Error(t, engine.DenySubject(`(`))
}

func TestFromConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.SafetyConfig
		act     action.Action
		allowed bool
	}{
		{"safe mode blocks lava", config.SafetyConfig{SafeMode: true}, action.MoveToLandmark{LandmarkID: "minecraft:lava"}, false},
		{"safe mode blocks tnt", config.SafetyConfig{SafeMode: true}, action.Harvest{ResourceID: "minecraft:tnt", Count: 1}, false},
		{"safe mode allows stone", config.SafetyConfig{SafeMode: true}, action.Harvest{ResourceID: "minecraft:stone", Count: 1}, true},
		{"safe mode allows fire charge", config.SafetyConfig{SafeMode: true}, action.Equip{ItemID: "minecraft:fire_charge"}, true},
		{"unsafe allows lava", config.SafetyConfig{}, action.MoveToLandmark{LandmarkID: "minecraft:lava"}, true},
		{"denied kind", config.SafetyConfig{DeniedActions: []string{"farm"}}, action.Cultivate{}, false},
		{"denied pattern", config.SafetyConfig{DeniedPatterns: []string{`^minecraft:cow$`}}, action.FollowTarget{TargetID: "minecraft:cow"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := FromConfig(tc.cfg, nil)
			require.NoError(t, err)
			res, err := e.Evaluate(context.Background(), Request{Action: tc.act, ChatID: "c1"})
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, res.Effect == EffectAllow, res.Reason)
		})
	}

	_, err := FromConfig(config.SafetyConfig{DeniedPatterns: []string{`[`}}, nil)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	e, err := FromConfig(config.SafetyConfig{SafeMode: true}, nil)
	require.NoError(t, err)

	p := action.Plan{
		Summary: "dig around",
		Actions: []action.Action{
			action.Harvest{ResourceID: "minecraft:coal_ore", Count: 8},
			action.MoveToLandmark{LandmarkID: "minecraft:lava"},
			action.Cultivate{Range: 5},
		},
	}
	out, denied, err := Filter(context.Background(), e, "c1", p)
	require.NoError(t, err)

	assert.Equal(t, "dig around", out.Summary)
	require.Len(t, out.Actions, 2)
	assert.Equal(t, action.KindMine, out.Actions[0].Kind())
	assert.Equal(t, action.KindFarm, out.Actions[1].Kind())
	require.Len(t, denied, 1)
	assert.Equal(t, EffectDeny, denied[0].Effect)
	assert.Len(t, p.Actions, 3, "input plan is untouched")
}
