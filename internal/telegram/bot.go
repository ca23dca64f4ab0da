package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/resolver"
	"github.com/ObiAU/hfentityengine/internal/store"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type EntityLookup interface {
	GetProjectByName(ctx context.Context, name string) (*models.Project, error)
	GetTopicByName(ctx context.Context, name string) (*models.Topic, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	send        sender
	lookup      EntityLookup
	webhookURL  string
	channelID   int64
	subscribers map[int64]struct{}
	mu          sync.RWMutex
	log         logger.Logger
}

func NewBot(token, webhookURL string, channelID int64, lookup EntityLookup, log logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := newBot(api, lookup, channelID, log)
	b.api = api
	b.webhookURL = webhookURL
	return b, nil
}

func newBot(s sender, lookup EntityLookup, channelID int64, log logger.Logger) *Bot {
	return &Bot{
		send:        s,
		lookup:      lookup,
		channelID:   channelID,
		subscribers: make(map[int64]struct{}),
		log:         log.With(logger.String("component", "telegram")),
	}
}

// Start registers the webhook when a URL is configured and otherwise falls
// back to long polling until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram api not configured")
	}

	if b.webhookURL != "" {
		webhook, err := tgbotapi.NewWebhook(b.webhookURL)
		if err != nil {
			return err
		}
		if _, err := b.api.Request(webhook); err != nil {
			return err
		}

		info, err := b.api.GetWebhookInfo()
		if err != nil {
			return err
		}
		if info.LastErrorDate != 0 {
			b.log.Warn("telegram webhook last error", logger.String("error", info.LastErrorMessage))
		}
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	go func() {
		for update := range updates {
			b.handleUpdate(ctx, update)
		}
	}()

	return nil
}

// HandleWebhook serves the update Telegram posts to the webhook URL.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	b.handleUpdate(r.Context(), update)
	w.WriteHeader(http.StatusOK)
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	cmd, arg := parseCommand(update.Message.Text)

	switch cmd {
	case "/start":
		b.sendMessage(chatID, welcomeText)
	case "/help":
		b.sendMessage(chatID, helpText)
	case "/subscribe":
		b.handleSubscribe(chatID)
	case "/unsubscribe":
		b.handleUnsubscribe(chatID)
	case "/project":
		b.handleProjectLookup(ctx, chatID, arg)
	case "/topic":
		b.handleTopicLookup(ctx, chatID, arg)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help for available commands.")
	}
}

// parseCommand splits "/cmd@botname args" into "/cmd" and "args".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	cmd, arg, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

const welcomeText = `Welcome to HF Entity Engine! 🧭

I announce newly discovered crypto projects and trending topics as they appear on social media.

/subscribe - Receive announcements here
/project [name] - Look up a project
/topic [name] - Look up a topic
/help - Show all commands`

const helpText = `HF Entity Engine Help 📖

Commands:
/start - Welcome message
/subscribe - Receive new project and topic announcements
/unsubscribe - Stop announcements
/project [name] - Show a project, e.g. /project BTC
/topic [name] - Show a topic, e.g. /topic DeFi
/help - Show this help`

func (b *Bot) handleSubscribe(chatID int64) {
	b.mu.Lock()
	b.subscribers[chatID] = struct{}{}
	b.mu.Unlock()

	b.sendMessage(chatID, "Subscribed! 🎯 New projects and topics will be posted here.")
}

func (b *Bot) handleUnsubscribe(chatID int64) {
	b.mu.Lock()
	_, had := b.subscribers[chatID]
	delete(b.subscribers, chatID)
	b.mu.Unlock()

	if !had {
		b.sendMessage(chatID, "You were not subscribed.")
		return
	}
	b.sendMessage(chatID, "Unsubscribed. Use /subscribe to come back.")
}

func (b *Bot) handleProjectLookup(ctx context.Context, chatID int64, arg string) {
	name := resolver.NormalizeProjectName(arg)
	if name == "" {
		b.sendMessage(chatID, "Usage: /project [name or ticker]")
		return
	}

	p, err := b.lookup.GetProjectByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.sendMessage(chatID, fmt.Sprintf("No project named %s yet.", html.EscapeString(name)))
	case err != nil:
		b.log.Error("project lookup failed", logger.String("project", name), logger.Error(err))
		b.sendMessage(chatID, "Lookup failed, try again later.")
	default:
		b.sendMessage(chatID, formatProject(p))
	}
}

func (b *Bot) handleTopicLookup(ctx context.Context, chatID int64, arg string) {
	name := resolver.NormalizeTopicName(arg)
	if name == "" {
		b.sendMessage(chatID, "Usage: /topic [name]")
		return
	}

	t, err := b.lookup.GetTopicByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.sendMessage(chatID, fmt.Sprintf("No topic named %s yet.", html.EscapeString(name)))
	case err != nil:
		b.log.Error("topic lookup failed", logger.String("topic", name), logger.Error(err))
		b.sendMessage(chatID, "Lookup failed, try again later.")
	default:
		b.sendMessage(chatID, formatTopic(t))
	}
}

// AnnounceProject posts to the channel and every subscriber and returns how
// many chats received it.
func (b *Bot) AnnounceProject(p *models.Project) int {
	return b.broadcast("🚀 New project\n\n" + formatProject(p))
}

func (b *Bot) AnnounceTopic(t *models.Topic) int {
	return b.broadcast("🔥 New topic\n\n" + formatTopic(t))
}

func (b *Bot) broadcast(text string) int {
	delivered := 0
	for _, chatID := range b.recipients() {
		if b.sendMessage(chatID, text) {
			delivered++
		}
	}
	return delivered
}

func (b *Bot) recipients() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]int64, 0, len(b.subscribers)+1)
	if b.channelID != 0 {
		out = append(out, b.channelID)
	}
	for id := range b.subscribers {
		if id != b.channelID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *Bot) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func formatProject(p *models.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b> ($%s)\n\n", html.EscapeString(p.Name), html.EscapeString(p.Symbol))
	fmt.Fprintf(&sb, "📊 Popularity: %d/10\n", p.Popularity)
	fmt.Fprintf(&sb, "😊 Sentiment: %.0f/100\n", p.SentimentIndex)
	if p.Category != "" {
		fmt.Fprintf(&sb, "📂 Category: %s\n", html.EscapeString(p.Category))
	}
	if len(p.Narratives) > 0 {
		fmt.Fprintf(&sb, "🏷️ Narratives: %s\n", html.EscapeString(strings.Join(p.Narratives, ", ")))
	}
	if p.Summary != "" {
		fmt.Fprintf(&sb, "\n📝 %s", html.EscapeString(p.Summary))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTopic(t *models.Topic) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(t.Name))
	fmt.Fprintf(&sb, "📊 Popularity: %d/10\n", t.Popularity)
	fmt.Fprintf(&sb, "🧭 Mob direction: %s\n", t.MobOpinionDirection)
	if len(t.KOLOpinions) > 0 {
		fmt.Fprintf(&sb, "🗣️ KOL opinions: %d\n", len(t.KOLOpinions))
	}
	if t.KeyEntities != "" {
		fmt.Fprintf(&sb, "🏷️ Key entities: %s\n", html.EscapeString(t.KeyEntities))
	}
	if t.Brief != "" {
		fmt.Fprintf(&sb, "\n📝 %s", html.EscapeString(t.Brief))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) sendMessage(chatID int64, text string) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := b.send.Send(msg); err != nil {
		b.log.Warn("failed to send telegram message", logger.Int64("chat_id", chatID), logger.Error(err))
		return false
	}
	return true
}
