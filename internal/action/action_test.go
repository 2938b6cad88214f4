package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanIsValid(t *testing.T) {
	assert.False(t, Plan{}.IsValid())
	assert.False(t, Plan{Actions: []Action{Halt{}}}.IsValid())
	assert.False(t, Ack("ok").IsValid())
	assert.True(t, Single(Halt{}, "Stopping").IsValid())
}

func TestHasClarification(t *testing.T) {
	p := Plan{Actions: []Action{Patrol{Distance: 10}, AskClarification{Question: "which way?"}}, Summary: "x"}
	assert.True(t, p.HasClarification())
	assert.False(t, Single(Halt{}, "x").HasClarification())
}

func TestTruncate(t *testing.T) {
	p := Plan{Summary: "long"}
	for i := 0; i < 12; i++ {
		p.Actions = append(p.Actions, WaitSeconds{Seconds: i + 1})
	}

	out, truncated := p.Truncate(MaxActions)
	assert.True(t, truncated)
	assert.Len(t, out.Actions, MaxActions)
	assert.Len(t, p.Actions, 12, "original plan must not be modified")

	same, truncated := out.Truncate(MaxActions)
	assert.False(t, truncated)
	assert.Len(t, same.Actions, MaxActions)
}

func TestCloneCopiesPointers(t *testing.T) {
	p := Single(MoveTo{X: 1, Y: IntPtr(64), Z: 2}, "go")
	c := p.Clone()
	*c.Actions[0].(MoveTo).Y = 10
	assert.Equal(t, 64, *p.Actions[0].(MoveTo).Y)
}

func TestDecodeStop(t *testing.T) {
	p, err := Decode(`{"actions":[{"type":"stop"}],"chat_summary":"ok"}`)
	require.NoError(t, err)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, Halt{}, p.Actions[0])
	assert.Equal(t, "ok", p.Summary)
}

func TestDecodeDefaultsAndNormalisation(t *testing.T) {
	raw := `{"actions":[
		{"type":"goto","x":10,"y":"64","z":-5.4},
		{"type":"goto","x":3,"z":4},
		{"type":"goto","block":"village"},
		{"type":"mine","block":"iron_ore"},
		{"type":"explore"},
		{"type":"follow","target":"Steve"},
		{"type":"farm","range":16},
		{"type":"wait","seconds":0},
		{"type":"equip","slot":2},
		{"type":"drop","item":"minecraft:dirt"}
	],"reason":"because","chat_summary":"doing things"}`

	p, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, p.Actions, 10)

	assert.Equal(t, MoveTo{X: 10, Y: IntPtr(64), Z: -5}, p.Actions[0])
	assert.Equal(t, MoveTo{X: 3, Z: 4}, p.Actions[1])
	assert.Equal(t, MoveToLandmark{LandmarkID: "minecraft:village"}, p.Actions[2])
	assert.Equal(t, Harvest{ResourceID: "minecraft:iron_ore", Count: DefaultHarvestCount}, p.Actions[3])
	assert.Equal(t, Patrol{Distance: DefaultExploreDistance}, p.Actions[4])
	assert.Equal(t, FollowTarget{TargetID: "Steve"}, p.Actions[5])
	assert.Equal(t, Cultivate{Range: 16}, p.Actions[6])
	assert.Equal(t, WaitSeconds{Seconds: DefaultWaitSeconds}, p.Actions[7])
	assert.Equal(t, Equip{Slot: IntPtr(2)}, p.Actions[8])
	assert.Equal(t, Drop{ItemID: "minecraft:dirt", Count: DefaultCount}, p.Actions[9])
	assert.Equal(t, "because", p.Reason)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown type":   `{"actions":[{"type":"dance"}],"chat_summary":"x"}`,
		"goto no target": `{"actions":[{"type":"goto","x":1}],"chat_summary":"x"}`,
		"mine no block":  `{"actions":[{"type":"mine","count":3}],"chat_summary":"x"}`,
		"follow nobody":  `{"actions":[{"type":"follow"}],"chat_summary":"x"}`,
		"equip bad slot": `{"actions":[{"type":"equip","slot":12}],"chat_summary":"x"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAction), "got %v", err)
		})
	}
}

func TestEncodeShape(t *testing.T) {
	p := Plan{
		Actions: []Action{MoveTo{X: 1, Z: 2}, Harvest{ResourceID: "minecraft:coal_ore", Count: 5}},
		Summary: "go mine",
		Reason:  "asked",
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"actions":[{"type":"goto","x":1,"z":2},{"type":"mine","block":"minecraft:coal_ore","count":5}],
		"reason":"asked",
		"chat_summary":"go mine"
	}`, string(b))
}

func TestFollowTargetIsEntity(t *testing.T) {
	assert.True(t, FollowTarget{TargetID: "minecraft:cow"}.IsEntity())
	assert.False(t, FollowTarget{TargetID: "Alex"}.IsEntity())
}

func TestDriven(t *testing.T) {
	assert.True(t, Driven(Harvest{}))
	assert.True(t, Driven(MoveToLandmark{}))
	assert.False(t, Driven(WaitSeconds{}))
	assert.False(t, Driven(Halt{}))
	assert.False(t, Driven(Equip{}))
}
