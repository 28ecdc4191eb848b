package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Commands usable without a librarian session
var publicCommands = map[string]bool{
	"start":  true,
	"help":   true,
	"login":  true,
	"cancel": true,
}

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	interrupted := false
	if state, ok := b.state(userID); ok {
		switch {
		case state.Step == stepDone:
			b.clearState(userID)
		case message.IsCommand():
			// Any command interrupts an ongoing conversation
			b.clearState(userID)
			interrupted = true
		default:
			b.handleConversation(ctx, message, state)
			if state.Step == stepDone {
				b.clearState(userID)
			}
			return
		}
	}

	if !message.IsCommand() {
		if message.Document != nil {
			b.reply(message.Chat.ID, "Use /import before sending a book list.")
		}
		return
	}

	command := message.Command()
	if !publicCommands[command] && !b.requireLogin(ctx, message.Chat.ID) {
		return
	}

	switch command {
	case "start", "help":
		b.handleStart(message)
	case "cancel":
		if interrupted {
			b.reply(message.Chat.ID, "Cancelled.")
		} else {
			b.reply(message.Chat.ID, "Nothing to cancel.")
		}
	case "login":
		b.handleLoginStart(ctx, message)
	case "logout":
		b.handleLogout(ctx, message)
	case "books":
		b.handleBooks(message)
	case "new_book":
		b.handleNewBookStart(message)
	case "borrow":
		b.handleBorrowStart(message)
	case "loans":
		b.handleLoans(message)
	case "history":
		b.handleHistory(message)
	case "stats":
		b.handleStats(message)
	case "recommend":
		b.handleRecommendStart(ctx, message)
	case "import":
		b.handleImportStart(message)
	case "apikey":
		b.handleAPIKey(ctx, message)
	case "model":
		b.handleModel(ctx, message)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	b.request(tgbotapi.NewCallback(query.ID, ""))

	if query.Message == nil {
		return
	}

	userID := query.From.ID
	ctx := context.Background()
	if !b.requireLogin(ctx, query.Message.Chat.ID) {
		return
	}

	data := query.Data

	// Loan and settings buttons work outside conversations
	switch {
	case strings.HasPrefix(data, "loan_return:"):
		b.handleReturnCallback(ctx, query)
		return
	case strings.HasPrefix(data, "loan_renew:"):
		b.handleRenewCallback(ctx, query)
		return
	case strings.HasPrefix(data, "loan_delete_yes:"):
		b.handleDeleteLoanConfirmCallback(ctx, query)
		return
	case strings.HasPrefix(data, "loan_delete:"):
		b.handleDeleteLoanCallback(query)
		return
	case data == "loan_keep":
		b.request(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, "Loan kept."))
		return
	case strings.HasPrefix(data, "model:"):
		b.handleModelCallback(ctx, query)
		return
	}

	state, ok := b.state(userID)
	if !ok {
		return
	}

	switch {
	case strings.HasPrefix(data, "category:"):
		b.handleCategoryCallback(query, state)
	case strings.HasPrefix(data, "borrow_book:"):
		b.handleBorrowBookCallback(query, state)
	case strings.HasPrefix(data, "import:"):
		b.handleImportCallback(ctx, query, state)
	}

	// Clean up completed conversations
	if state.Step == stepDone {
		b.clearState(userID)
	}
}

// requireLogin tells the user to log in when no librarian session is open
func (b *Bot) requireLogin(ctx context.Context, chatID int64) bool {
	_, ok, err := b.session.Current(ctx)
	if err != nil {
		b.logger.Error("Failed to read session", zap.Error(err))
		b.replyError(chatID, err)
		return false
	}
	if !ok {
		b.reply(chatID, "🔒 Please /login first.")
		return false
	}
	return true
}
