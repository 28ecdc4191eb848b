package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"schoollibrary/internal/assistant"
	"schoollibrary/internal/models"
)

// handleCategoryCallback stores the category picked for a new book
func (b *Bot) handleCategoryCallback(query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "new_book" || state.Step != 3 {
		return
	}

	category := models.Category(strings.TrimPrefix(query.Data, "category:"))
	if !category.Valid() {
		return
	}

	state.Data["category"] = category
	state.Step = 4
	b.reply(query.Message.Chat.ID, fmt.Sprintf("🏷 %s\n🔢 Number of copies:", category.Label()))
}

// handleBorrowBookCallback records the book to lend and asks for the student
func (b *Bot) handleBorrowBookCallback(query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "borrow" || state.Step != 1 {
		return
	}

	chatID := query.Message.Chat.ID
	book, err := b.store.Book(strings.TrimPrefix(query.Data, "borrow_book:"))
	if err != nil {
		state.Step = stepDone
		b.replyError(chatID, err)
		return
	}
	if book.Available <= 0 {
		state.Step = stepDone
		b.reply(chatID, fmt.Sprintf("❌ %s is out of stock.", book.Title))
		return
	}

	state.Data["book_id"] = book.ID
	state.Step = 2
	b.reply(chatID, fmt.Sprintf("📖 %s\n👤 Student name:", book.Title))
}

// handleImportCallback adds the reviewed candidates or drops them
func (b *Bot) handleImportCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "import" || state.Step != 2 {
		return
	}

	chatID := query.Message.Chat.ID
	state.Step = stepDone

	if strings.TrimPrefix(query.Data, "import:") != "confirm" {
		b.reply(chatID, "Import cancelled.")
		return
	}

	candidates, _ := state.Data["candidates"].([]assistant.Candidate)
	batch := make([]models.NewBook, 0, len(candidates))
	for _, c := range candidates {
		batch = append(batch, c.NewBook())
	}

	added, err := b.store.ImportBooks(ctx, batch)
	if err != nil {
		b.logger.Error("Failed to import books", zap.Error(err))
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Imported %d book(s).", len(added)))
}

// handleReturnCallback returns a loan and replaces its message with the outcome
func (b *Bot) handleReturnCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	loanID := strings.TrimPrefix(query.Data, "loan_return:")
	res, err := b.store.Return(ctx, loanID)
	if err != nil {
		b.replyError(query.Message.Chat.ID, err)
		return
	}

	text := fmt.Sprintf("↩️ %s returned by %s.\n%s", res.Loan.BookTitle, res.Loan.StudentName, res.Message())
	b.request(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text))
}

func (b *Bot) handleRenewCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	loanID := strings.TrimPrefix(query.Data, "loan_renew:")
	loan, err := b.store.Renew(ctx, loanID)
	if err != nil {
		b.replyError(query.Message.Chat.ID, err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↩️ Return", "loan_return:"+loan.ID),
		tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", "loan_delete:"+loan.ID),
	))
	text := fmt.Sprintf("🔁 Renewed until %s.\n\n%s", loan.DueDate.Format(dateLayout), formatLoan(loan))
	b.request(tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, keyboard))
}

// handleDeleteLoanCallback asks before a loan is deleted
func (b *Bot) handleDeleteLoanCallback(query *tgbotapi.CallbackQuery) {
	loanID := strings.TrimPrefix(query.Data, "loan_delete:")
	loan, err := b.store.Loan(loanID)
	if err != nil {
		b.replyError(query.Message.Chat.ID, err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Yes, delete", "loan_delete_yes:"+loan.ID),
		tgbotapi.NewInlineKeyboardButtonData("Keep", "loan_keep"),
	))
	b.replyWithKeyboard(query.Message.Chat.ID,
		fmt.Sprintf("Delete loan %s (%s, %s)? An unreturned copy goes back on the shelf.", loan.ID, loan.BookTitle, loan.StudentName),
		keyboard)
}

func (b *Bot) handleDeleteLoanConfirmCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	loanID := strings.TrimPrefix(query.Data, "loan_delete_yes:")
	if err := b.store.DeleteLoan(ctx, loanID); err != nil {
		b.replyError(query.Message.Chat.ID, err)
		return
	}
	b.request(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, "🗑 Loan "+loanID+" deleted."))
}

func (b *Bot) handleModelCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	model := strings.TrimPrefix(query.Data, "model:")
	if err := b.assistant.Settings().SetModel(ctx, model); err != nil {
		b.replyError(query.Message.Chat.ID, err)
		return
	}
	b.request(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, "🤖 Model set to "+model+"."))
}
