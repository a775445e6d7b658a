package telegram

import (
	"context"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

func (s *Service) onCallback(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx == nil || ctx.CallbackQuery == nil {
		return nil
	}

	data := strings.TrimSpace(ctx.CallbackQuery.Data)
	chatID, ok := s.callbackChatID(ctx)
	if !ok {
		s.answerCallback(b, ctx, "Chat is unavailable for this action.", true)
		return nil
	}
	s.answerCallback(b, ctx, "", false)
	bg := context.Background()

	switch {
	case data == cbHelp:
		return s.editOrReplyCallback(ctx, b, s.helpText(), s.backToBotsKeyboard())

	case data == cbBots:
		text, markup, err := s.botsList(bg)
		if err != nil {
			s.logger.Error().Err(err).Msg("list chatbots failed")
			s.answerCallback(b, ctx, "Failed to load chatbots.", true)
			return nil
		}
		return s.editOrReplyCallback(ctx, b, text, markup)

	case data == cbStatus:
		return s.editOrReplyCallback(ctx, b, s.statusText(bg, chatID), s.boundKeyboard())

	case data == cbReset:
		return s.editOrReplyCallback(ctx, b, s.unbind(bg, chatID), s.backToBotsKeyboard())

	case strings.HasPrefix(data, cbBindPrefix):
		text, err := s.bind(bg, chatID, strings.TrimPrefix(data, cbBindPrefix))
		if err != nil {
			return s.editOrReplyCallback(ctx, b, text, s.backToBotsKeyboard())
		}
		return s.editOrReplyCallback(ctx, b, text, s.boundKeyboard())

	default:
		s.answerCallback(b, ctx, "Unknown action.", true)
		return nil
	}
}

func (s *Service) answerCallback(b *gotgbot.Bot, ctx *ext.Context, text string, alert bool) {
	if ctx == nil || ctx.CallbackQuery == nil {
		return
	}
	opts := &gotgbot.AnswerCallbackQueryOpts{ShowAlert: alert}
	if text != "" {
		opts.Text = text
	}
	_, _ = b.AnswerCallbackQuery(ctx.CallbackQuery.Id, opts)
}

func (s *Service) editOrReplyCallback(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx != nil && ctx.CallbackQuery != nil && ctx.CallbackQuery.Message != nil {
		opts := &gotgbot.EditMessageTextOpts{}
		if markup != nil {
			opts.ReplyMarkup = *markup
		}
		_, _, err := ctx.CallbackQuery.Message.EditText(b, text, opts)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}

func (s *Service) callbackChatID(ctx *ext.Context) (int64, bool) {
	if ctx != nil && ctx.EffectiveChat != nil {
		return ctx.EffectiveChat.Id, true
	}
	if ctx != nil && ctx.CallbackQuery != nil && ctx.CallbackQuery.Message != nil {
		chat := ctx.CallbackQuery.Message.GetChat()
		return chat.Id, true
	}
	return 0, false
}
