package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"spot_bot/internal/models"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StatusSource answers the /status command.
type StatusSource interface {
	Snapshot() models.Snapshot
}

// Telegram sends trade events to one chat. Sends are queued so a slow
// Telegram API never holds up trading.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	status StatusSource
	log    *zap.Logger

	queue    chan string
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(b *tgbot.BotAPI, chatID int64, log *zap.Logger) *Telegram {
	return &Telegram{
		bot:    b,
		chatID: chatID,
		log:    log,
		queue:  make(chan string, 64),
	}
}

// Attach enables /status. Call before Start.
func (t *Telegram) Attach(status StatusSource) { t.status = status }

// Notify queues text for delivery and drops it when the queue is full.
func (t *Telegram) Notify(_ context.Context, text string) {
	select {
	case t.queue <- text:
	default:
		t.log.Warn("telegram queue full, message dropped", zap.String("text", text))
	}
}

func (t *Telegram) send(text string) error {
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, text))
	return err
}

// Start runs the sender and the command listener until Stop.
func (t *Telegram) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.sendLoop(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.listenCommands(ctx)
	}()
}

func (t *Telegram) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.bot.StopReceivingUpdates()
		t.wg.Wait()
	})
}

func (t *Telegram) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.flush()
			return
		case text := <-t.queue:
			if err := t.send(text); err != nil {
				t.log.Warn("telegram send", zap.Error(err))
			}
		}
	}
}

// flush delivers what is already queued, so the final shutdown message is not lost.
func (t *Telegram) flush() {
	for {
		select {
		case text := <-t.queue:
			if err := t.send(text); err != nil {
				t.log.Warn("telegram send", zap.Error(err))
			}
		default:
			return
		}
	}
}

func (t *Telegram) listenCommands(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			msg := upd.Message
			if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
				continue
			}
			switch msg.Command() {
			case "status":
				if t.status == nil {
					continue
				}
				t.Notify(ctx, StatusText(t.status.Snapshot(), time.Now()))
			}
		}
	}
}

// StatusText renders a snapshot for humans.
func StatusText(s models.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n", s.Symbol)

	switch {
	case s.Closing:
		b.WriteString("position: closing\n")
	case s.IsOpen:
		fmt.Fprintf(&b, "position: open for %s\n", now.Sub(s.OpenedAt).Truncate(time.Second))
		if s.EntryPrice.Valid {
			fmt.Fprintf(&b, "entry: %s\n", s.EntryPrice.Decimal)
		}
	default:
		b.WriteString("position: none\n")
	}
	if s.InCooldown {
		b.WriteString("cooldown: active\n")
	}
	if s.CurrentPrice.Valid {
		fmt.Fprintf(&b, "price: %s\n", s.CurrentPrice.Decimal)
	}
	fmt.Fprintf(&b, "balance: %s quote / %s base", s.Balances.Quote.StringFixed(4), s.Balances.Base.StringFixed(8))
	return b.String()
}
