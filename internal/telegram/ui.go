package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"botsmith/internal/storage"
)

const (
	cbPrefix = "bs:"

	cbBots       = cbPrefix + "bots"
	cbHelp       = cbPrefix + "help"
	cbStatus     = cbPrefix + "status"
	cbReset      = cbPrefix + "reset"
	cbBindPrefix = cbPrefix + "bind:"
)

// maxListed caps the chatbot picker so the inline keyboard stays usable.
const maxListed = 20

func (s *Service) helpText() string {
	return strings.Join([]string{
		"BotSmith on Telegram",
		"",
		"/bots - pick one of the available chatbots",
		"/bot <id> - talk to a chatbot by id",
		"/status - show which chatbot you are talking to",
		"/reset - stop talking to the current chatbot",
		"",
		"Once a chatbot is picked, every message you send is answered by it.",
	}, "\n")
}

func (s *Service) statusText(ctx context.Context, chatID int64) string {
	id, err := s.bindings.Get(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("read binding failed")
		return "Status is unavailable right now."
	}
	if id == 0 {
		return "You are not talking to any chatbot. Use /bots to pick one."
	}
	bot, err := s.chatbots.GetChatbot(ctx, id)
	if err != nil {
		return fmt.Sprintf("You are bound to chatbot #%d, which is no longer available. Use /bots to pick another.", id)
	}
	return strings.Join([]string{
		fmt.Sprintf("Talking to: %s (#%d)", bot.Name, bot.ID),
		fmt.Sprintf("Industry: %s", bot.Industry),
		fmt.Sprintf("Model: %s", bot.AIModel),
		fmt.Sprintf("Session: %s", SessionID(chatID, bot.ID)),
	}, "\n")
}

// botsList renders the chatbot picker. Inactive chatbots are left out.
func (s *Service) botsList(ctx context.Context) (string, *gotgbot.InlineKeyboardMarkup, error) {
	bots, err := s.chatbots.ListChatbots(ctx, s.defaultOwnerID)
	if err != nil {
		return "", nil, err
	}
	rows := [][]gotgbot.InlineKeyboardButton{}
	for _, b := range bots {
		if !b.IsActive {
			continue
		}
		if len(rows) == maxListed {
			break
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{{
			Text:         botLabel(b),
			CallbackData: cbBindPrefix + strconv.FormatInt(b.ID, 10),
		}})
	}
	if len(rows) == 0 {
		return "No chatbots are available yet. Create one with the BotSmith wizard first.", nil, nil
	}
	return "Pick a chatbot to talk to:", &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

func botLabel(b storage.Chatbot) string {
	label := b.Name
	if b.Industry != "" {
		label += " · " + b.Industry
	}
	if r := []rune(label); len(r) > 60 {
		label = string(r[:60])
	}
	return label
}

func (s *Service) boundKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Status", CallbackData: cbStatus},
			{Text: "Switch chatbot", CallbackData: cbBots},
		},
		{
			{Text: "Stop", CallbackData: cbReset},
			{Text: "Help", CallbackData: cbHelp},
		},
	}}
}

func (s *Service) backToBotsKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{{Text: "Pick a chatbot", CallbackData: cbBots}},
	}}
}

func (s *Service) replyWithMarkup(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx == nil || ctx.EffectiveChat == nil {
		return nil
	}
	opts := &gotgbot.SendMessageOpts{}
	if markup != nil {
		opts.ReplyMarkup = *markup
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, opts)
	return err
}
