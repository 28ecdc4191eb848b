package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram rejects longer texts
const maxMessageLen = 4000

// sendMessage sends a message, logging failures
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.sender == nil {
		return // For testing
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err))
	}
}

// request performs an API call whose result is not needed
func (b *Bot) request(c tgbotapi.Chattable) {
	if b.sender == nil {
		return
	}
	if _, err := b.sender.Request(c); err != nil {
		b.logger.Warn("Telegram request failed", zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	b.sendMessage(msg)
}

// replyLong splits text on line boundaries into messages Telegram accepts
func (b *Bot) replyLong(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		b.reply(chatID, chunk)
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.reply(chatID, fmt.Sprintf("❌ %s", userMessage(err)))
}

func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			cut := limit
			// do not split a multi-byte rune
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			// invalid UTF-8 has no rune start to back up to
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// keyboardRows lays buttons out in rows of perRow
func keyboardRows(buttons []tgbotapi.InlineKeyboardButton, perRow int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, button := range buttons {
		currentRow = append(currentRow, button)

		// Add row when it is full or this is the last button
		if len(currentRow) == perRow || i == len(buttons)-1 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}
	return rows
}
