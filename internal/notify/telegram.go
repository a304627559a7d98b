package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"roombook/internal/events"
	"roombook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier tells managers about bookings that need their attention:
// new pending bookings and cancellations.
type TelegramNotifier struct {
	bot      Sender
	chatIDs  []int64
	location *time.Location
	logger   *zerolog.Logger
}

// NewTelegramNotifier connects to the bot API with token.
func NewTelegramNotifier(token string, chatIDs []int64, loc *time.Location, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(chatIDs)).Msg("Telegram notifier authorized")
	return NewTelegramNotifierWithSender(bot, chatIDs, loc, logger), nil
}

func NewTelegramNotifierWithSender(bot Sender, chatIDs []int64, loc *time.Location, logger *zerolog.Logger) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, location: loc, logger: logger}
}

func (n *TelegramNotifier) Notify(_ context.Context, msg Message) error {
	text := n.format(msg)
	if text == "" {
		return nil
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		m := tgbotapi.NewMessage(chatID, text)
		m.ParseMode = tgbotapi.ModeHTML
		if _, err := n.bot.Send(m); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Int64("booking_id", msg.Booking.ID).Msg("Telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// format renders the manager message, or "" when managers need not be told.
func (n *TelegramNotifier) format(msg Message) string {
	b := msg.Booking
	if b == nil {
		return ""
	}

	var head string
	switch {
	case msg.Event == events.EventBookingCreated && b.Status == models.StatusPending:
		head = "🆕 <b>Booking awaiting approval</b>"
	case msg.Event == events.EventBookingCancelled:
		head = "❌ <b>Booking cancelled</b>"
	default:
		return ""
	}

	start := b.StartTime.In(n.location)
	end := b.EndTime.In(n.location)

	var sb strings.Builder
	sb.WriteString(head)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "#%d %s\n", b.ID, html.EscapeString(b.Title))
	fmt.Fprintf(&sb, "Room: %s\n", html.EscapeString(b.RoomName))
	fmt.Fprintf(&sb, "When: %s %s–%s\n", start.Format("02.01.2006"), start.Format("15:04"), end.Format("15:04"))
	fmt.Fprintf(&sb, "By: %d", b.CreatedBy)
	if b.IsRecurring() {
		fmt.Fprintf(&sb, "\nSeries: %s (%s)", b.RecurrenceID, b.RecurrencePattern)
	}
	return sb.String()
}

