// Package sentryhelper isolates Sentry scope per Discord command.
package sentryhelper

import (
	"context"
	"fmt"

	sentry "github.com/getsentry/sentry-go"
)

type contextKey string

const hubContextKey contextKey = "sentry_hub"

// StartCommandTransaction starts a transaction on a cloned hub so breadcrumbs
// and tags stay with this command only.
func StartCommandTransaction(ctx context.Context, commandName, guildID, userID string) (context.Context, *sentry.Span) {
	hub := sentry.CurrentHub().Clone()
	ctx = context.WithValue(ctx, hubContextKey, hub)

	transaction := sentry.StartTransaction(ctx, fmt.Sprintf("discord.command.%s", commandName),
		sentry.WithOpName("discord.command"),
		sentry.WithTransactionSource(sentry.SourceRoute),
	)
	transaction.SetTag("command", commandName)
	transaction.SetTag("guild_id", guildID)
	transaction.SetTag("user_id", userID)

	hub.Scope().SetSpan(transaction)
	return transaction.Context(), transaction
}

// HubFromContext falls back to the current hub when ctx carries none.
func HubFromContext(ctx context.Context) *sentry.Hub {
	if ctx == nil {
		return sentry.CurrentHub()
	}
	if hub, ok := ctx.Value(hubContextKey).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func AddBreadcrumb(ctx context.Context, category, message string) {
	HubFromContext(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
	}, nil)
}

func CaptureException(ctx context.Context, err error) *sentry.EventID {
	return HubFromContext(ctx).CaptureException(err)
}

// DetachFromTransaction keeps the command's hub but drops its transaction and
// cancellation, for work that outlives the interaction response.
func DetachFromTransaction(ctx context.Context) context.Context {
	return context.WithValue(context.Background(), hubContextKey, HubFromContext(ctx))
}
