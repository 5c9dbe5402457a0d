package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotAPI is the part of *tgbotapi.BotAPI the sender needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender messages users that have a known chat id.
type TelegramSender struct {
	api     BotAPI
	chatIDs map[int64]int64
	logger  *zap.Logger
}

// NewTelegramBotAPI connects to Telegram with the given bot token.
func NewTelegramBotAPI(token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Info("Telegram notifier authorized", zap.String("username", botAPI.Self.UserName))
	return botAPI, nil
}

// NewTelegramSender creates a sender. chatIDs maps user ids to Telegram chats.
func NewTelegramSender(api BotAPI, chatIDs map[int64]int64, logger *zap.Logger) *TelegramSender {
	return &TelegramSender{api: api, chatIDs: chatIDs, logger: logger}
}

func (s *TelegramSender) Name() string { return "telegram" }

// Send skips users without a chat mapping.
func (s *TelegramSender) Send(_ context.Context, msg Message) error {
	chatID, ok := s.chatIDs[msg.UserID]
	if !ok {
		s.logger.Debug("No Telegram chat for user", zap.Int64("user_id", msg.UserID))
		return nil
	}

	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, formatText(msg))); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatText(msg Message) string {
	var b strings.Builder
	b.WriteString("Moderation update: ")
	b.WriteString(string(msg.Event))

	keys := make([]string, 0, len(msg.Payload))
	for k := range msg.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, msg.Payload[k])
	}
	return b.String()
}
