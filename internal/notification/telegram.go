package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const boxRule = "━━━━━━━━━━━━━━━━━━"

// TelegramNotifier sends alerts and documents to one channel via the
// Telegram Bot API. The channel target is either a numeric chat id or an
// "@channelname".
type TelegramNotifier struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	channel string
}

// NewTelegramNotifier connects the bot and resolves the channel target.
// botToken: Bot API token from @BotFather
// channelID: numeric chat/channel id or "@channelname"
func NewTelegramNotifier(botToken, channelID string) (*TelegramNotifier, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("telegram: bot token and channel id are required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}

	t := &TelegramNotifier{api: api}
	if strings.HasPrefix(channelID, "@") {
		t.channel = channelID
	} else {
		id, err := strconv.ParseInt(channelID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: channel id %q: %w", channelID, err)
		}
		t.chatID = id
	}

	log.Printf("[telegram] connected as %s", api.Self.UserName)
	return t, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := renderAlert(alert)

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send %q: %w", alert.Title, err)
	}
	return nil
}

func (t *TelegramNotifier) SendFile(ctx context.Context, path, caption string) error {
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(path))
	if t.channel != "" {
		doc.ChannelUsername = t.channel
	}
	doc.Caption = caption

	if _, err := t.api.Send(doc); err != nil {
		return fmt.Errorf("telegram: send document %s: %w", path, err)
	}
	return nil
}

// renderAlert lays the alert out as the channel's boxed Markdown format.
func renderAlert(a Alert) string {
	if a.Message == "" {
		return "*" + a.Title + "*"
	}
	return "*" + a.Title + "*\n" + boxRule + "\n" + a.Message
}
