// Package telegram implements the Telegram side of the AI teacher: the
// /ai_teacher conversation, the /leave command and relaying free text
// through the orchestrator while a "thinking" message is animated.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
	tg "github.com/langflow/ai-teacher/internal/infrastructure/external/telegram"
	"github.com/langflow/ai-teacher/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Messenger is the subset of the Telegram client the bot uses.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (*tg.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) (*tg.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	StartPolling(ctx context.Context, handler tg.UpdateHandler) error
}

// UserDirectory resolves a Telegram account to a backend user.
type UserDirectory interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (tutoring.User, error)
}

// Conversations runs rounds for a student.
type Conversations interface {
	Handle(ctx context.Context, studentID, text string) (string, error)
}

// Warmer is optionally implemented by Conversations to load a student's
// buffer before the first message arrives.
type Warmer interface {
	Warm(ctx context.Context, studentID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// RoundTimeout bounds one conversation round, including tool calls.
	RoundTimeout time.Duration

	// AnimationInterval is the delay between "thinking" frames.
	AnimationInterval time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		MaxConcurrentUpdates: 32,
		RoundTimeout:         3 * time.Minute,
		AnimationInterval:    time.Second,
		Logger:               logger.Default(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the AI teacher conversation controller.
type Bot struct {
	config        BotConfig
	messenger     Messenger
	users         UserDirectory
	conversations Conversations
	log           *logger.Logger

	mu     sync.Mutex
	active map[int64]string   // telegram id -> student id
	busy   map[int64]struct{} // telegram ids with a round in progress
}

// NewBot creates a bot.
func NewBot(config BotConfig, messenger Messenger, users UserDirectory, conversations Conversations) *Bot {
	def := DefaultBotConfig()
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = def.MaxConcurrentUpdates
	}
	if config.RoundTimeout <= 0 {
		config.RoundTimeout = def.RoundTimeout
	}
	if config.AnimationInterval <= 0 {
		config.AnimationInterval = def.AnimationInterval
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	return &Bot{
		config:        config,
		messenger:     messenger,
		users:         users,
		conversations: conversations,
		log:           config.Logger.With(logger.Component("telegram_bot")),
		active:        make(map[int64]string),
		busy:          make(map[int64]struct{}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Run polls for updates until ctx is cancelled. Updates are handled on a
// bounded pool; rounds already running are allowed to finish before Run
// returns.
func (b *Bot) Run(ctx context.Context) error {
	p := pool.New().WithMaxGoroutines(b.config.MaxConcurrentUpdates)

	b.log.Info("telegram bot started", logger.Int("max_concurrent_updates", b.config.MaxConcurrentUpdates))

	err := b.messenger.StartPolling(ctx, func(ctx context.Context, update tg.Update) {
		p.Go(func() { b.HandleUpdate(ctx, update) })
	})

	p.Wait()
	b.log.Info("telegram bot stopped")
	return err
}

// ActiveConversations returns the number of users currently talking to the
// AI teacher.
func (b *Bot) ActiveConversations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single update. Panics are recovered and logged.
func (b *Bot) HandleUpdate(ctx context.Context, update tg.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	log := b.log.With(
		logger.TelegramID(msg.From.ID),
		logger.Int64("update_id", update.UpdateID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling update",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()

	ctx = logger.WithContext(ctx, log)

	switch tg.ExtractCommand(msg) {
	case "ai_teacher":
		b.startConversation(ctx, msg)
	case "leave":
		b.endConversation(ctx, msg)
	case "":
		b.handleText(ctx, msg)
	default:
		// other commands belong to other handlers
	}
}

func (b *Bot) startConversation(ctx context.Context, msg *tg.Message) {
	log := logger.FromContextOr(ctx, b.log)
	telegramID := msg.From.ID

	user, err := b.users.GetUserByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, tutoring.ErrNotFound):
		b.reply(ctx, msg, textNotRegistered)
		return
	case err != nil:
		log.Error("failed to check user role", logger.Err(err))
		b.reply(ctx, msg, textRoleCheckFailed)
		return
	case !user.IsStudent():
		b.reply(ctx, msg, textStudentsOnly)
		return
	}

	b.mu.Lock()
	_, already := b.active[telegramID]
	if !already {
		b.active[telegramID] = user.ID
	}
	b.mu.Unlock()

	if already {
		b.reply(ctx, msg, textAlreadyActive)
		return
	}

	if w, ok := b.conversations.(Warmer); ok {
		if err := w.Warm(ctx, user.ID); err != nil {
			log.Warn("failed to load conversation buffer", logger.StudentID(user.ID), logger.Err(err))
		}
	}

	log.Info("conversation started", logger.StudentID(user.ID))
	b.reply(ctx, msg, textWelcome)
}

func (b *Bot) endConversation(ctx context.Context, msg *tg.Message) {
	b.mu.Lock()
	studentID, ok := b.active[msg.From.ID]
	delete(b.active, msg.From.ID)
	b.mu.Unlock()

	if !ok {
		return
	}

	logger.FromContextOr(ctx, b.log).Info("conversation ended", logger.StudentID(studentID))
	b.reply(ctx, msg, textGoodbye)
}

func (b *Bot) handleText(ctx context.Context, msg *tg.Message) {
	telegramID := msg.From.ID

	b.mu.Lock()
	studentID, ok := b.active[telegramID]
	_, busy := b.busy[telegramID]
	if ok && !busy {
		b.busy[telegramID] = struct{}{}
	}
	b.mu.Unlock()

	switch {
	case !ok:
		b.reply(ctx, msg, textStartFirst)
		return
	case busy:
		b.reply(ctx, msg, textStillThinking)
		return
	}

	defer func() {
		b.mu.Lock()
		delete(b.busy, telegramID)
		b.mu.Unlock()
	}()

	b.runRound(ctx, msg, studentID)
}

// runRound sends the thinking message, animates it while the orchestrator
// works and replaces it with the answer.
func (b *Bot) runRound(ctx context.Context, msg *tg.Message, studentID string) {
	log := logger.FromContextOr(ctx, b.log).
		WithRequestID(uuid.NewString()).
		With(logger.StudentID(studentID))

	// the round outlives a shutdown signal so the buffer is not left mid-round
	roundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.RoundTimeout)
	defer cancel()
	roundCtx = logger.WithContext(roundCtx, log)

	chatID := msg.Chat.ID
	thinking, err := b.messenger.SendText(roundCtx, chatID, thinkingFrames[0])
	if err != nil {
		log.Warn("failed to send thinking message", logger.Err(err))
		thinking = nil
	}

	stopAnimation := func() {}
	if thinking != nil {
		stopAnimation = b.animate(roundCtx, chatID, thinking.MessageID)
	}

	started := time.Now()
	answer, err := b.conversations.Handle(roundCtx, studentID, msg.Text)
	stopAnimation()

	if err != nil {
		log.Error("conversation round failed", logger.Err(err), logger.Latency(time.Since(started)))
		answer = textRoundFailed
	} else {
		log.Info("conversation round completed", logger.Latency(time.Since(started)))
	}

	b.deliver(roundCtx, chatID, thinking, answer)
}

// animate cycles through the thinking frames until the returned stop
// function is called. stop waits for the animation goroutine to exit.
func (b *Bot) animate(ctx context.Context, chatID, messageID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(b.config.AnimationInterval)
		defer ticker.Stop()

		for frame := 1; ; frame++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			text := thinkingFrames[frame%len(thinkingFrames)]
			if _, err := b.messenger.EditMessageText(ctx, chatID, messageID, text); err != nil && ctx.Err() == nil {
				// edits are cosmetic; keep animating
				b.log.Debug("thinking frame not updated", logger.Err(err))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// deliver puts the answer in place of the thinking message. Long answers
// continue in follow-up messages.
func (b *Bot) deliver(ctx context.Context, chatID int64, thinking *tg.Message, answer string) {
	log := logger.FromContextOr(ctx, b.log)
	chunks := tg.SplitText(answer)

	if thinking != nil {
		_, err := b.messenger.EditMessageText(ctx, chatID, thinking.MessageID, chunks[0])
		if err == nil || tg.IsMessageNotModified(err) {
			chunks = chunks[1:]
		} else {
			log.Warn("failed to replace thinking message", logger.Err(err))
			if err := b.messenger.DeleteMessage(ctx, chatID, thinking.MessageID); err != nil {
				log.Debug("failed to delete thinking message", logger.Err(err))
			}
		}
	}

	for _, chunk := range chunks {
		if _, err := b.messenger.SendText(ctx, chatID, chunk); err != nil {
			log.Error("failed to send answer", logger.Err(err))
			return
		}
	}
}

func (b *Bot) reply(ctx context.Context, msg *tg.Message, text string) {
	if _, err := b.messenger.SendText(ctx, msg.Chat.ID, text); err != nil {
		logger.FromContextOr(ctx, b.log).Error("failed to send reply", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHED USER DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// UserCache stores resolved users by Telegram id. Get returns an error on a
// miss.
type UserCache interface {
	Get(ctx context.Context, telegramID int64) (tutoring.User, error)
	Set(ctx context.Context, user tutoring.User) error
}

// CachedUserDirectory puts a cache in front of a UserDirectory. Cache
// failures never fail a lookup.
type CachedUserDirectory struct {
	next  UserDirectory
	cache UserCache
	log   *logger.Logger
}

// NewCachedUserDirectory creates the directory.
func NewCachedUserDirectory(next UserDirectory, cache UserCache, log *logger.Logger) *CachedUserDirectory {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedUserDirectory{next: next, cache: cache, log: log}
}

// GetUserByTelegramID returns the cached user or asks the backend.
func (d *CachedUserDirectory) GetUserByTelegramID(ctx context.Context, telegramID int64) (tutoring.User, error) {
	if user, err := d.cache.Get(ctx, telegramID); err == nil {
		return user, nil
	}

	user, err := d.next.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return tutoring.User{}, fmt.Errorf("lookup user %d: %w", telegramID, err)
	}
	if user.TelegramID == 0 {
		user.TelegramID = telegramID
	}

	if err := d.cache.Set(ctx, user); err != nil {
		d.log.Warn("failed to cache user", logger.TelegramID(telegramID), logger.Err(err))
	}
	return user, nil
}
