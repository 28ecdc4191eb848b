package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is where Telegram posts updates in webhook mode
const WebhookPath = "/telegram-webhook"

// The bot only reacts to messages and inline button presses
var allowedUpdates = []string{tgbotapi.UpdateTypeMessage, tgbotapi.UpdateTypeCallbackQuery}

// Start polls Telegram for updates until Stop is called
func (b *Bot) Start() error {
	b.logger.Info("Starting bot in polling mode", zap.String("bot_username", b.api.Self.UserName))

	// A webhook left over from a previous deployment blocks getUpdates
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = allowedUpdates

	for update := range b.api.GetUpdatesChan(cfg) {
		b.HandleWebhookUpdate(update)
	}
	b.logger.Info("Polling stopped")
	return nil
}

// Stop ends long polling; Start returns once the updates channel is closed
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// StartWebhook points Telegram at baseURL+WebhookPath
func (b *Bot) StartWebhook(baseURL string) error {
	b.logger.Info("Setting up webhook", zap.String("webhook_url", baseURL))

	cfg, err := tgbotapi.NewWebhook(baseURL + WebhookPath)
	if err != nil {
		return err
	}
	cfg.MaxConnections = 40
	cfg.AllowedUpdates = allowedUpdates

	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", baseURL))
		return err
	}

	if info, err := b.api.GetWebhookInfo(); err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
			zap.String("last_error", info.LastErrorMessage),
		)
	}
	return nil
}

// HandleWebhookUpdate routes one update from an allowed user to its handler
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	from := update.SentFrom()
	if from == nil {
		return
	}

	if !b.allowedUsers[from.ID] {
		b.logger.Warn("Update from unknown user",
			zap.Int64("user_id", from.ID),
			zap.String("username", from.UserName),
			zap.Bool("callback", update.CallbackQuery != nil),
		)
		// Only a plain message gets an answer, buttons stay silent
		if update.Message != nil {
			b.reply(update.Message.Chat.ID, "Sorry, you are not authorized to use this bot.")
		}
		return
	}

	switch {
	case update.Message != nil:
		b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(update.CallbackQuery)
	}
}
