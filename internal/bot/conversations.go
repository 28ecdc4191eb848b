package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"schoollibrary/internal/docparse"
	"schoollibrary/internal/models"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Command {
	case "login":
		b.handleLoginConversation(ctx, message, state)
	case "new_book":
		b.handleNewBookConversation(ctx, message, state)
	case "borrow":
		b.handleBorrowConversation(ctx, message, state)
	case "recommend":
		b.handleRecommendConversation(ctx, message, state)
	case "import":
		b.handleImportConversation(ctx, message, state)
	}
}

func (b *Bot) handleLoginConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case 1: // Waiting for username
		if text == "" {
			b.reply(message.Chat.ID, "👤 Username:")
			return
		}
		state.Data["username"] = text
		state.Step = 2
		b.reply(message.Chat.ID, "🔑 Password:")

	case 2: // Waiting for password
		b.request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID))
		state.Step = stepDone

		username, _ := state.Data["username"].(string)
		if err := b.session.Login(ctx, username, text); err != nil {
			b.replyError(message.Chat.ID, err)
			return
		}

		overdue := 0
		for _, l := range b.store.OutstandingLoans() {
			if l.Status == models.LoanOverdue {
				overdue++
			}
		}
		reply := fmt.Sprintf("✅ Welcome, %s!", username)
		if overdue > 0 {
			reply += fmt.Sprintf("\n⚠️ %d loan(s) are overdue. See /loans.", overdue)
		}
		b.reply(message.Chat.ID, reply)
	}
}

// handleNewBookConversation walks through title, author, category and copies
func (b *Bot) handleNewBookConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case 1: // Waiting for title
		if text == "" {
			b.reply(message.Chat.ID, "The title cannot be empty. Title of the new book:")
			return
		}
		state.Data["title"] = text
		state.Step = 2
		b.reply(message.Chat.ID, "✍️ Author:")

	case 2: // Waiting for author
		state.Data["author"] = text
		state.Step = 3

		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(models.Categories))
		for _, c := range models.Categories {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label(), "category:"+string(c)))
		}
		b.replyWithKeyboard(message.Chat.ID, "🏷 Category:", tgbotapi.NewInlineKeyboardMarkup(keyboardRows(buttons, 2)...))

	case 3: // Waiting for the category button
		b.reply(message.Chat.ID, "Please pick a category with the buttons above.")

	case 4: // Waiting for number of copies
		total, err := strconv.Atoi(text)
		if err != nil || total < 0 {
			b.reply(message.Chat.ID, "Please enter a whole number of copies (0 or more).")
			return
		}

		title, _ := state.Data["title"].(string)
		author, _ := state.Data["author"].(string)
		category, _ := state.Data["category"].(models.Category)

		book, err := b.store.AddBook(ctx, models.NewBook{
			Title:    title,
			Author:   author,
			Category: category,
			Total:    total,
		})
		state.Step = stepDone
		if err != nil {
			b.logger.Error("Failed to add book", zap.Error(err), zap.String("title", title))
			b.replyError(message.Chat.ID, err)
			return
		}
		b.reply(message.Chat.ID, "✅ Book added:\n"+formatBook(book))
	}
}

// handleBorrowConversation collects the student after the book was picked
func (b *Bot) handleBorrowConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case 1: // Waiting for the book button
		b.reply(message.Chat.ID, "Please pick a book with the buttons above.")

	case 2: // Waiting for student name
		if text == "" {
			b.reply(message.Chat.ID, "👤 Student name:")
			return
		}
		if err := b.store.CheckBorrowLimit(text); err != nil {
			state.Step = stepDone
			b.replyError(message.Chat.ID, err)
			return
		}
		state.Data["student"] = text
		state.Step = 3
		b.reply(message.Chat.ID, "🏫 Class:")

	case 3: // Waiting for class
		if text == "" {
			b.reply(message.Chat.ID, "🏫 Class:")
			return
		}

		bookID, _ := state.Data["book_id"].(string)
		student, _ := state.Data["student"].(string)
		state.Step = stepDone

		loan, err := b.store.Borrow(ctx, bookID, student, text)
		if err != nil {
			b.logger.Warn("Borrow failed", zap.Error(err), zap.String("book_id", bookID))
			b.replyError(message.Chat.ID, err)
			return
		}
		b.reply(message.Chat.ID, fmt.Sprintf("✅ %s lent to %s (%s).\nLoan %s, due %s.",
			loan.BookTitle, loan.StudentName, loan.StudentClass, loan.ID, loan.DueDate.Format(dateLayout)))
	}
}

func (b *Bot) handleRecommendConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	query := strings.TrimSpace(message.Text)
	if query == "" {
		return
	}
	state.Step = stepDone
	b.recommend(ctx, message.Chat.ID, query)
}

// handleImportConversation parses the uploaded file and asks for confirmation
func (b *Bot) handleImportConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	if state.Step != 1 {
		b.reply(message.Chat.ID, "Please confirm or cancel the import with the buttons above.")
		return
	}

	doc := message.Document
	if doc == nil {
		b.reply(message.Chat.ID, "Please send the book list as a file, or /cancel.")
		return
	}
	if !docparse.Supported(doc.FileName) {
		b.reply(message.Chat.ID, fmt.Sprintf("❌ %s is not supported. Use %s.",
			filepath.Ext(doc.FileName), strings.Join(docparse.Extensions, ", ")))
		return
	}
	if doc.FileSize > maxUploadBytes {
		b.reply(message.Chat.ID, "❌ The file is too large.")
		return
	}

	b.reply(message.Chat.ID, "⏳ Reading "+doc.FileName+"…")

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.logger.Error("Failed to download document", zap.Error(err), zap.String("file", doc.FileName))
		state.Step = stepDone
		b.replyError(message.Chat.ID, err)
		return
	}

	parsed, err := docparse.Parse(doc.FileName, data)
	if err != nil {
		state.Step = stepDone
		b.replyError(message.Chat.ID, err)
		return
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()

	res, err := b.assistant.ExtractBooks(aiCtx, parsed.Text, parsed.IsTable())
	if err != nil {
		b.logger.Warn("Book extraction failed", zap.Error(err), zap.String("file", doc.FileName))
		state.Step = stepDone
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(res.Books) == 0 {
		state.Step = stepDone
		b.reply(message.Chat.ID, "🤷 No books were found in the file.")
		return
	}

	state.Data["candidates"] = res.Books
	state.Step = 2

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Import all", "import:confirm"),
		tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "import:cancel"),
	))
	chunks := splitMessage(formatCandidates(res), maxMessageLen)
	for _, chunk := range chunks[:len(chunks)-1] {
		b.reply(message.Chat.ID, chunk)
	}
	b.replyWithKeyboard(message.Chat.ID, chunks[len(chunks)-1], keyboard)
}
