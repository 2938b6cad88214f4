package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBrain struct {
	mu    sync.Mutex
	seen  []string
	reply func(string) string
	err   error
}

func (b *echoBrain) Think(ctx context.Context, chatID, input string) (string, error) {
	b.mu.Lock()
	b.seen = append(b.seen, chatID+"|"+input)
	b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	if b.reply != nil {
		return b.reply(input), nil
	}
	return "ok: " + input, nil
}

func (b *echoBrain) Seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

type fakeMessenger struct {
	name string
	sent []string
}

func (f *fakeMessenger) Name() string                    { return f.name }
func (f *fakeMessenger) Start(ctx context.Context) error { <-ctx.Done(); return nil }
func (f *fakeMessenger) Stop() error                     { return nil }

func (f *fakeMessenger) Send(chatID, text string) error {
	f.sent = append(f.sent, chatID+"|"+text)
	return nil
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Mining 10x minecraft:oak_log", Sanitize("<b>Mining</b> 10x minecraft:oak_log"))
	assert.Equal(t, "Tom & Jerry", Sanitize(" Tom & Jerry "))
	assert.Equal(t, "", Sanitize("<script>alert(1)</script>"))
}

func TestChatID(t *testing.T) {
	id := ChatID("tg", "-100123")
	assert.Equal(t, "tg:-100123", id)

	gw, raw, ok := SplitChatID(id)
	require.True(t, ok)
	assert.Equal(t, "tg", gw)
	assert.Equal(t, "-100123", raw)

	gw, raw, ok = SplitChatID("game:Steve")
	require.True(t, ok)
	assert.Equal(t, "game", gw)
	assert.Equal(t, "Steve", raw)
}

func TestHubRoutes(t *testing.T) {
	tg := &fakeMessenger{name: "tg"}
	game := &fakeMessenger{name: "game"}
	h := NewHub(tg, game)

	require.NoError(t, h.Send("tg:42", "<i>hello</i>"))
	require.NoError(t, h.Send("game:Steve", "Following Steve"))
	require.NoError(t, h.Send("game:Steve", "<p></p>"), "empty after sanitizing is dropped")
	assert.Error(t, h.Send("dc:1", "nobody home"))

	assert.Equal(t, []string{"tg:42|hello"}, tg.sent)
	assert.Equal(t, []string{"game:Steve|Following Steve"}, game.sent)
	assert.ElementsMatch(t, []string{"tg", "game"}, h.Names())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.Start(ctx))
	assert.NoError(t, h.Stop())
}

type recordingSayer struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSayer) Say(player, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, player+": "+text)
	return nil
}

func (r *recordingSayer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestGameGateway(t *testing.T) {
	brain := &echoBrain{}
	sayer := &recordingSayer{}
	g := NewGameGateway(sayer, brain, "", nil)

	g.Handle("Steve", "hello everyone")
	g.Handle("Steve", "ai")
	g.Handle("Alex", "AI mine 10 coal")

	require.Eventually(t, func() bool { return len(sayer.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"game:Alex|mine 10 coal"}, brain.Seen())
	assert.Equal(t, []string{"Alex: ok: mine 10 coal"}, sayer.Lines())

	quiet := &echoBrain{reply: func(string) string { return "" }}
	g = NewGameGateway(sayer, quiet, "/cmd", nil)
	g.Handle("Alex", "cmd stop")
	require.Eventually(t, func() bool { return len(quiet.Seen()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sayer.Lines(), 1, "empty replies are not said")
}

func TestTerminalGatewayPiped(t *testing.T) {
	brain := &echoBrain{}
	var out bytes.Buffer
	in := strings.NewReader("mine 5 iron\n\n  follow me  \nquit\nnever read\n")
	tg := NewTerminalGateway(brain, in, &out, nil)

	require.NoError(t, tg.Start(context.Background()))
	assert.Equal(t, []string{"term:local|mine 5 iron", "term:local|follow me"}, brain.Seen())
	assert.Equal(t, "ok: mine 5 iron\nok: follow me\n", out.String())

	brain.err = errors.New("model down")
	out.Reset()
	tg = NewTerminalGateway(brain, strings.NewReader("dig\n"), &out, nil)
	require.NoError(t, tg.Start(context.Background()))
	assert.Equal(t, "error: model down\n", out.String())
}

func TestDiscordAccept(t *testing.T) {
	d := NewDiscordGateway("token", "chan-1", &echoBrain{}, nil)
	bot := &discordgo.User{ID: "bot"}

	cases := []struct {
		name string
		msg  *discordgo.Message
		text string
		ok   bool
	}{
		{"direct message", &discordgo.Message{Content: "mine coal"}, "mine coal", true},
		{"configured channel", &discordgo.Message{GuildID: "g", ChannelID: "chan-1", Content: "farm"}, "farm", true},
		{"other channel", &discordgo.Message{GuildID: "g", ChannelID: "chan-2", Content: "farm"}, "farm", false},
		{"mentioned", &discordgo.Message{GuildID: "g", ChannelID: "chan-2", Content: "<@bot> follow me", Mentions: []*discordgo.User{bot}}, "follow me", true},
		{"nickname mention", &discordgo.Message{GuildID: "g", ChannelID: "chan-2", Content: "<@!bot>  stop ", Mentions: []*discordgo.User{bot}}, "stop", true},
		{"only a mention", &discordgo.Message{Content: "<@bot>", Mentions: []*discordgo.User{bot}}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, ok := d.accept("bot", tc.msg)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.text, text)
			}
		})
	}

	assert.ErrorIs(t, d.Send("dc:chan-1", "hi"), ErrNotStarted)
}

func TestTelegramSend(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"cmdr","username":"cmdr_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+"|"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("TOKEN", srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	tg := newTelegramGateway(bot, &echoBrain{}, nil)

	assert.Equal(t, "tg", tg.Name())
	require.NoError(t, tg.Send("tg:42", "Mining <b>10x</b> minecraft:oak_log"))
	assert.Error(t, tg.Send("tg:abc", "nope"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"42|Mining 10x minecraft:oak_log"}, sent)
}
