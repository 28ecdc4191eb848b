package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"schoollibrary/internal/assistant"
	"schoollibrary/internal/docparse"
)

const (
	// Telegram keyboards get unwieldy past this many buttons
	maxBookButtons = 30
	maxListedLoans = 25
	maxHistory     = 20

	// aiTimeout bounds a single assistant call including fallbacks
	aiTimeout = 2 * time.Minute
)

// handleStart handles the /start command
func (b *Bot) handleStart(message *tgbotapi.Message) {
	text := `📚 School Library Bot

Session:
/login - Log in as librarian
/logout - Log out

Catalog:
/books [text] - List or search books
/new_book - Add a book
/import - Import books from a Word, PDF or Excel file
/stats - Library statistics

Loans:
/borrow [text] - Lend a book to a student
/loans - Books currently out, with return and renew buttons
/history - Returned loans

AI assistant:
/recommend <topic> - Reading suggestions
/apikey [key|clear] - Show or set the AI API key
/model - Choose the AI model

/cancel - Abort the current step`

	b.reply(message.Chat.ID, text)
}

// handleLoginStart starts the login conversation
func (b *Bot) handleLoginStart(ctx context.Context, message *tgbotapi.Message) {
	if user, ok, err := b.session.Current(ctx); err == nil && ok {
		b.reply(message.Chat.ID, fmt.Sprintf("Already logged in as %s.", user))
		return
	}

	b.setState(message.From.ID, newState("login"))
	b.reply(message.Chat.ID, "👤 Username:")
}

func (b *Bot) handleLogout(ctx context.Context, message *tgbotapi.Message) {
	if err := b.session.Logout(ctx); err != nil {
		b.logger.Error("Failed to log out", zap.Error(err))
		b.replyError(message.Chat.ID, err)
		return
	}
	b.reply(message.Chat.ID, "👋 Logged out.")
}

// handleBooks lists the catalog, filtered by the command argument
func (b *Bot) handleBooks(message *tgbotapi.Message) {
	query := strings.TrimSpace(message.CommandArguments())
	books := b.store.SearchBooks(query)
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books found.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 %d book(s), available/total:\n", len(books))
	for _, book := range books {
		sb.WriteString("\n" + formatBook(book))
	}
	b.replyLong(message.Chat.ID, sb.String())
}

// handleNewBookStart starts the add-book conversation
func (b *Bot) handleNewBookStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, newState("new_book"))
	b.reply(message.Chat.ID, "📖 Title of the new book:")
}

// handleBorrowStart shows the books on the shelf as buttons
func (b *Bot) handleBorrowStart(message *tgbotapi.Message) {
	books := b.store.AvailableBooks(strings.TrimSpace(message.CommandArguments()))
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No available books match.")
		return
	}

	text := "📚 Select the book to lend:"
	if len(books) > maxBookButtons {
		text = fmt.Sprintf("📚 Showing %d of %d books. Narrow the list with /borrow <title>.", maxBookButtons, len(books))
		books = books[:maxBookButtons]
	}

	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(books))
	for _, book := range books {
		label := fmt.Sprintf("%s · %s (%d)", book.ID, shorten(book.Title, 28), book.Available)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, "borrow_book:"+book.ID))
	}

	b.setState(message.From.ID, newState("borrow"))
	b.replyWithKeyboard(message.Chat.ID, text, tgbotapi.NewInlineKeyboardMarkup(keyboardRows(buttons, 1)...))
}

// handleLoans sends one message per outstanding loan with its action buttons
func (b *Bot) handleLoans(message *tgbotapi.Message) {
	loans := b.store.OutstandingLoans()
	if len(loans) == 0 {
		b.reply(message.Chat.ID, "No books are out on loan.")
		return
	}

	shown := loans
	if len(shown) > maxListedLoans {
		shown = shown[:maxListedLoans]
	}
	for _, loan := range shown {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("↩️ Return", "loan_return:"+loan.ID),
		}
		if !loan.IsRenewed {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("🔁 Renew", "loan_renew:"+loan.ID))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", "loan_delete:"+loan.ID))
		b.replyWithKeyboard(message.Chat.ID, formatLoan(loan), tgbotapi.NewInlineKeyboardMarkup(row))
	}

	if len(loans) > len(shown) {
		b.reply(message.Chat.ID, fmt.Sprintf("… and %d more loan(s).", len(loans)-len(shown)))
	}
}

func (b *Bot) handleHistory(message *tgbotapi.Message) {
	loans := b.store.History()
	if len(loans) == 0 {
		b.reply(message.Chat.ID, "No returned loans yet.")
		return
	}
	if len(loans) > maxHistory {
		loans = loans[:maxHistory]
	}

	var sb strings.Builder
	sb.WriteString("📜 Recently returned:\n")
	for _, loan := range loans {
		sb.WriteString("\n" + formatHistoryEntry(loan))
	}
	b.replyLong(message.Chat.ID, sb.String())
}

func (b *Bot) handleStats(message *tgbotapi.Message) {
	b.reply(message.Chat.ID, formatStats(b.store.Stats()))
}

// handleRecommendStart answers right away when a topic is given, otherwise asks for one
func (b *Bot) handleRecommendStart(ctx context.Context, message *tgbotapi.Message) {
	query := strings.TrimSpace(message.CommandArguments())
	if query != "" {
		b.recommend(ctx, message.Chat.ID, query)
		return
	}

	b.setState(message.From.ID, newState("recommend"))
	b.reply(message.Chat.ID, "💡 What topic or keyword are the students looking for?")
}

func (b *Bot) recommend(ctx context.Context, chatID int64, query string) {
	books := b.store.Books()
	titles := make([]string, 0, len(books))
	for _, book := range books {
		titles = append(titles, book.Title)
	}

	b.reply(chatID, "⏳ Asking the AI assistant…")

	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()

	res, err := b.assistant.Recommend(ctx, query, titles)
	if err != nil {
		b.logger.Warn("Recommendation failed", zap.String("query", query), zap.Error(err))
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, formatRecommendations(query, res))
}

// handleImportStart asks for the document holding the book list
func (b *Bot) handleImportStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, newState("import"))
	b.reply(message.Chat.ID, fmt.Sprintf("📎 Send the book list as a file (%s).", strings.Join(docparse.Extensions, ", ")))
}

// handleAPIKey shows, sets or clears the AI API key
func (b *Bot) handleAPIKey(ctx context.Context, message *tgbotapi.Message) {
	arg := strings.TrimSpace(message.CommandArguments())
	settings := b.assistant.Settings()

	switch arg {
	case "":
		key, err := settings.APIKey(ctx)
		if err != nil {
			b.replyError(message.Chat.ID, err)
			return
		}
		if key == "" {
			b.reply(message.Chat.ID, "🔑 No AI API key is set. Use /apikey <key>.")
			return
		}
		b.reply(message.Chat.ID, "🔑 AI API key: "+maskKey(key))
	case "clear":
		if err := settings.Clear(ctx); err != nil {
			b.replyError(message.Chat.ID, err)
			return
		}
		b.reply(message.Chat.ID, "🔑 Saved AI API key and model cleared.")
	default:
		// Keep the key out of the chat history
		b.request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID))
		if err := settings.SetAPIKey(ctx, arg); err != nil {
			b.replyError(message.Chat.ID, err)
			return
		}
		b.reply(message.Chat.ID, "🔑 AI API key saved: "+maskKey(arg))
	}
}

// handleModel shows the model picker
func (b *Bot) handleModel(ctx context.Context, message *tgbotapi.Message) {
	current, err := b.assistant.Settings().Model(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}

	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(assistant.FallbackModels))
	for _, m := range assistant.FallbackModels {
		label := m
		if m == current {
			label = "✓ " + m
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, "model:"+m))
	}

	b.replyWithKeyboard(message.Chat.ID, fmt.Sprintf("🤖 Current model: %s\nOthers are tried in order when it fails.", current),
		tgbotapi.NewInlineKeyboardMarkup(keyboardRows(buttons, 1)...))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
