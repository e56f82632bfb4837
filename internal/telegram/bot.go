// Package telegram connects the expense service to the Telegram Bot API
// using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"settlement/internal/ledger"
	"settlement/internal/log"
	"settlement/internal/services"
	"settlement/internal/trace"
)

var _ ledger.Sender = (*Bot)(nil)

// MessageHandler processes one inbound chat message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg services.InboundMessage) error
}

type Config struct {
	Token string
	Debug bool
}

type Bot struct {
	api     *bot.Bot
	logger  *log.Logger
	handler MessageHandler
	tracer  *trace.Recorder
}

// New creates the bot client. The handler is attached by Start so the
// service can be built with this Bot as its sender.
func New(cfg Config, logger *log.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	b := &Bot{
		logger: logger.WithComponent(log.ComponentBot),
		tracer: trace.NewRecorder(),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithErrorsHandler(func(err error) {
			b.logger.Error("Telegram polling error", log.FieldError, err)
		}),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	api, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.api = api

	return b, nil
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return errors.New("message handler is required")
	}
	b.handler = handler

	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}

	b.logger.InfoContext(ctx, "Telegram bot started", "username", me.Username, "id", me.ID)
	b.api.Start(ctx)

	m := b.tracer.Metrics()
	b.logger.InfoContext(ctx, "Telegram bot stopped",
		"updates", m.TotalUpdates,
		"failed", m.FailedUpdates)
	return nil
}

// SendText implements ledger.Sender.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	dispatch(ctx, b.logger, b.tracer, b.handler, update)
}

func dispatch(ctx context.Context, logger *log.Logger, tracer *trace.Recorder, handler MessageHandler, update *models.Update) {
	msg, ok := toInbound(update)
	if !ok || handler == nil {
		return
	}
	ctx = log.WithContext(ctx, logger)
	ctx, done := tracer.Start(ctx, logger.Logger,
		log.FieldUpdateID, update.ID,
		log.FieldChatID, msg.ChatID)
	done(handler.HandleMessage(ctx, msg))
}

// toInbound extracts the text message from an update. Updates without a
// text message are skipped.
func toInbound(update *models.Update) (services.InboundMessage, bool) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return services.InboundMessage{}, false
	}
	m := update.Message
	return services.InboundMessage{
		ChatID:      m.Chat.ID,
		Text:        m.Text,
		SentAt:      time.Unix(int64(m.Date), 0),
		ForwardedAt: forwardedAt(m.ForwardOrigin),
	}, true
}

// forwardedAt returns the original send time of a forwarded message.
func forwardedAt(origin *models.MessageOrigin) *time.Time {
	if origin == nil {
		return nil
	}
	var date int
	switch {
	case origin.MessageOriginUser != nil:
		date = origin.MessageOriginUser.Date
	case origin.MessageOriginHiddenUser != nil:
		date = origin.MessageOriginHiddenUser.Date
	case origin.MessageOriginChat != nil:
		date = origin.MessageOriginChat.Date
	case origin.MessageOriginChannel != nil:
		date = origin.MessageOriginChannel.Date
	}
	if date == 0 {
		return nil
	}
	t := time.Unix(int64(date), 0)
	return &t
}
