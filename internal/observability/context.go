package observability

import "context"

type chatIDKey struct{}

// WithChatID tags ctx with the conversation that triggered the work, so
// events logged further down carry it.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

func ChatID(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey{}).(string)
	return id
}
