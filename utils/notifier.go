package utils

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/threadboard/server/config"
)

// Notifier pushes short operational messages to administrators.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

// TelegramNotifier posts to a single admin chat through the Telegram Bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier builds a Telegram notifier when a bot token and chat are configured,
// otherwise a notifier that discards everything.
func NewNotifier(cfg config.AppConfig) Notifier {
	if cfg.TelegramBotToken == "" || cfg.TelegramAdminChatID == 0 {
		return nopNotifier{}
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		Logger.Warn("telegram notifier disabled", zap.Error(err))
		return nopNotifier{}
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.TelegramAdminChatID}
}

func (t *TelegramNotifier) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, "*"+escapeMarkdown(title)+"*\n\n"+escapeMarkdown(body))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return errors.Wrap(err, "telegram send")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// NotifyAsync sends in the background and only logs failures.
func NotifyAsync(n Notifier, title, body string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Notify(ctx, title, body); err != nil {
			Logger.Warn("admin notification failed", zap.String("title", title), zap.Error(err))
		}
	}()
}
