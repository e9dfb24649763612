package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"
	"lightning-sats-bot/internal/usecase"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Settings are the chat-facing knobs of the engine.
type Settings struct {
	AdminID     int64
	BotUsername string
	WebAppURL   string
	ChannelLink string
	SupportLink string
	// Dev disables redaction of payment details in logs.
	Dev bool
}

// UseCases groups the domain actions the engine drives.
type UseCases struct {
	Users      usecase.UserUseCase
	Payouts    usecase.PayoutUseCase
	Promotions usecase.PromotionUseCase
	Claims     usecase.ClaimUseCase
	Broadcasts usecase.BroadcastUseCase
	Stats      usecase.StatsUseCase
}

// Engine turns inbound chat events into session transitions, domain actions and replies.
type Engine struct {
	users      usecase.UserUseCase
	payouts    usecase.PayoutUseCase
	promotions usecase.PromotionUseCase
	claims     usecase.ClaimUseCase
	broadcasts usecase.BroadcastUseCase
	stats      usecase.StatsUseCase

	sessions repository.SessionStore
	locker   repository.ChatLocker
	bot      adapter.TelegramBotAdapter
	t        *i18n.Translator
	cfg      Settings
	log      *zerolog.Logger

	parser   *commandParser
	commands map[Command]commandHandler

	// background admin work (broadcasts) outlives the triggering update
	bg sync.WaitGroup
}

// turn is one inbound text event with everything resolved for handlers.
type turn struct {
	ev    model.InboundEvent
	user  *model.User
	isNew bool
	sess  *model.ConversationSession
	cmd   Command
	arg   string
}

func (t *turn) chatID() int64 { return t.ev.ChatID }

func NewEngine(
	uc UseCases,
	sessions repository.SessionStore,
	locker repository.ChatLocker,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	cfg Settings,
	logger *zerolog.Logger,
) *Engine {
	e := &Engine{
		users:      uc.Users,
		payouts:    uc.Payouts,
		promotions: uc.Promotions,
		claims:     uc.Claims,
		broadcasts: uc.Broadcasts,
		stats:      uc.Stats,
		sessions:   sessions,
		locker:     locker,
		bot:        bot,
		t:          translator,
		cfg:        cfg,
		log:        logging.Component(logger, "Engine"),
	}
	e.parser = newCommandParser(translator, func(text string) (string, bool) {
		m, ok := uc.Payouts.MethodByButton(text)
		return m.ID, ok
	})
	e.commands = e.commandRoutes()
	return e
}

// Handle processes one inbound event while holding the chat lock. Failures are
// answered with a generic message and never returned; the only error is a lock
// that could not be taken before ctx ended.
func (e *Engine) Handle(ctx context.Context, ev model.InboundEvent) error {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx = logging.WithTgID(ctx, ev.From.TelegramID)
	log := logging.With(ctx, e.log)

	unlock, err := e.locker.Lock(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("lock chat %d: %w", ev.ChatID, err)
	}
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandleError()
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Panic while handling update")
			e.fail(ctx, ev)
		}
	}()

	if err := e.dispatch(ctx, ev); err != nil {
		metrics.IncHandleError()
		log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("Update handling failed")
		e.fail(ctx, ev)
	}
	return nil
}

// fail clears any in-flight flow and tells the user something went wrong.
func (e *Engine) fail(ctx context.Context, ev model.InboundEvent) {
	if err := e.sessions.Clear(ctx, ev.ChatID); err != nil {
		e.log.Warn().Err(err).Int64("chat_id", ev.ChatID).Msg("Failed to clear session after error")
	}
	if ev.IsCallback() {
		e.answer(ctx, ev.Callback.ID, e.t.T("generic_failure"), true)
		return
	}
	e.reply(ctx, ev.ChatID, e.t.T("generic_failure"), e.mainMenu())
}

func (e *Engine) dispatch(ctx context.Context, ev model.InboundEvent) error {
	if ev.IsCallback() {
		return e.handleCallback(ctx, ev)
	}

	user, isNew, err := e.users.RegisterOrFetch(ctx, ev.From)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	sess, err := e.sessions.Get(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	t := &turn{ev: ev, user: user, isNew: isNew, sess: sess}
	text := strings.TrimSpace(ev.Text)
	cmd, arg := e.parser.parse(text)

	// Only CONFIRM may follow the confirmation prompt; anything else abandons it.
	// CANCEL clears on its own so it can report the cancelled payout.
	if sess.AwaitingPayoutConfirmation() && cmd != CmdConfirm && cmd != CmdCancel {
		if err := e.clearSession(ctx, t); err != nil {
			return err
		}
		if cmd == CmdNone {
			return e.showDefaultMenu(ctx, t)
		}
	}

	if cmd != CmdNone {
		metrics.IncTelegramCommand(cmd.String())
		t.cmd, t.arg = cmd, arg
		return e.commands[cmd](ctx, t)
	}
	switch {
	case t.sess.AwaitingPromotionURL():
		return e.handlePromotionURL(ctx, t, text)
	case t.sess.AwaitingPayoutDetails():
		return e.handlePayoutDetails(ctx, t, text)
	}
	return e.showDefaultMenu(ctx, t)
}

func (e *Engine) showDefaultMenu(ctx context.Context, t *turn) error {
	e.reply(ctx, t.chatID(), e.t.T("menu_default"), e.mainMenu())
	return nil
}

func (e *Engine) saveSession(ctx context.Context, t *turn, sess *model.ConversationSession) error {
	if err := e.sessions.Set(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	t.sess = sess
	metrics.IncFlowTransition(string(sess.Flow), string(sess.Step))
	return nil
}

func (e *Engine) clearSession(ctx context.Context, t *turn) error {
	if t.sess == nil {
		return nil
	}
	if err := e.sessions.Clear(ctx, t.chatID()); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	metrics.IncFlowTransition(string(t.sess.Flow), "cleared")
	t.sess = nil
	return nil
}

// reply is best-effort: delivery failures are logged and never abort the flow.
func (e *Engine) reply(ctx context.Context, chatID int64, text string, kb *adapter.ReplyMarkup) {
	err := e.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: kb})
	if err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func (e *Engine) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := e.bot.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		e.log.Warn().Err(err).Msg("Failed to answer callback")
	}
}

func (e *Engine) edit(ctx context.Context, chatID int64, messageID int, text string, kb *adapter.ReplyMarkup) {
	err := e.bot.EditMessage(ctx, adapter.EditMessageParams{ChatID: chatID, MessageID: messageID, Text: text, ReplyMarkup: kb})
	if err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to edit message")
	}
}

// Wait blocks until background admin work has finished.
func (e *Engine) Wait() { e.bg.Wait() }
