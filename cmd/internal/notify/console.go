package notify

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// ConsoleMailer logs messages instead of sending them. Used outside production.
type ConsoleMailer struct {
	log *slog.Logger
}

func NewConsoleMailer(log *slog.Logger) *ConsoleMailer {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleMailer{log: log}
}

func (m *ConsoleMailer) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := msg.validate(); err != nil {
		return Result{}, err
	}

	id := "console-" + ulid.Make().String()
	m.log.LogAttrs(ctx, slog.LevelInfo, "mail.console",
		slog.String("message_id", id),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("html", msg.HTML),
		slog.String("text", msg.Text),
	)
	return Result{Success: true, MessageID: id}, nil
}
