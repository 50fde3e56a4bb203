package tg

import (
	"context"
	"strconv"
	"strings"

	"github.com/pvzzle/buywatch/internal/ethwatch"
	"github.com/pvzzle/buywatch/internal/notify"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	cmdStart  = "/start"
	cmdBuyNow = "/buynow"
)

// Service is the Telegram side of the bot: the send path for the broadcast
// chat and the two informational commands.
type Service struct {
	bot      *tgbot.Bot
	chatID   any
	branding ethwatch.Branding
	log      *zap.SugaredLogger
}

func NewService(b *tgbot.Bot, chatID string, branding ethwatch.Branding, log *zap.SugaredLogger) *Service {
	s := &Service{
		bot:      b,
		chatID:   ParseChatID(chatID),
		branding: branding,
		log:      log,
	}
	s.registerHandlers()
	return s
}

// ParseChatID turns a numeric id into int64 and leaves "@channel" names as
// strings, the two forms the Bot API accepts.
func ParseChatID(raw string) any {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id
	}
	return raw
}

func (s *Service) registerHandlers() {
	s.bot.RegisterHandlerMatchFunc(matchCommand(cmdStart), s.onStart)
	s.bot.RegisterHandlerMatchFunc(matchCommand(cmdBuyNow), s.onBuyNow)
}

// matchCommand matches "/cmd", "/cmd args" and the group form "/cmd@BotName".
func matchCommand(cmd string) tgbot.MatchFunc {
	return func(upd *models.Update) bool {
		if upd.Message == nil {
			return false
		}
		fields := strings.Fields(upd.Message.Text)
		if len(fields) == 0 {
			return false
		}
		name, _, _ := strings.Cut(fields[0], "@")
		return strings.EqualFold(name, cmd)
	}
}

// Start runs long polling until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.log.Infow("telegram polling started", "chat", s.chatID)
	s.bot.Start(ctx)
	return ctx.Err()
}

// Send posts m to the broadcast chat: a photo with caption when m carries an
// image, plain text otherwise.
func (s *Service) Send(ctx context.Context, m notify.Message) error {
	if m.ImageURL != "" {
		_, err := s.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID:    s.chatID,
			Photo:     &models.InputFileString{Data: m.ImageURL},
			Caption:   m.Text,
			ParseMode: models.ParseModeMarkdownV1,
		})
		return err
	}

	_, err := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      m.Text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	return err
}

func (s *Service) onStart(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: upd.Message.Chat.ID,
		Text:   ethwatch.FormatWelcome(s.branding),
	})
	s.logReply(upd, err)
}

func (s *Service) onBuyNow(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	_, err := b.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:    upd.Message.Chat.ID,
		Photo:     &models.InputFileString{Data: s.branding.LogoURL},
		Caption:   ethwatch.FormatBuyNow(s.branding),
		ParseMode: models.ParseModeMarkdownV1,
	})
	s.logReply(upd, err)
}

// Command replies answer the requesting chat directly and never go through
// the broadcast queue.
func (s *Service) logReply(upd *models.Update, err error) {
	if err != nil {
		chatID := upd.Message.Chat.ID
		s.log.Warnw("command reply failed", "chat", chatID, "command", upd.Message.Text, "error", err)
	}
}
