package application

import (
	"context"
	"strings"

	"lightning-sats-bot/internal/infra/i18n"
)

// Command is the closed set of literal inputs the engine reacts to.
type Command int

const (
	CmdNone Command = iota
	CmdStart
	CmdAccount
	CmdCashout
	CmdAffiliates
	CmdPromotion
	CmdHowTo
	CmdAddFunds
	CmdStartEarning
	CmdBack
	CmdChannelMembers
	CmdBot
	CmdConfirm
	CmdCancel
	CmdPaymentMethod
	CmdStats
	CmdBroadcast
)

var commandNames = map[Command]string{
	CmdStart:          "start",
	CmdAccount:        "account",
	CmdCashout:        "cashout",
	CmdAffiliates:     "affiliates",
	CmdPromotion:      "promotion",
	CmdHowTo:          "howto",
	CmdAddFunds:       "add_funds",
	CmdStartEarning:   "start_earning",
	CmdBack:           "back",
	CmdChannelMembers: "channel_members",
	CmdBot:            "bot",
	CmdConfirm:        "confirm",
	CmdCancel:         "cancel",
	CmdPaymentMethod:  "payment_method",
	CmdStats:          "stats",
	CmdBroadcast:      "broadcast",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "none"
}

// buttonKeys maps reply keyboard labels (catalog keys) to commands.
var buttonKeys = map[string]Command{
	"btn_account":         CmdAccount,
	"btn_cashout":         CmdCashout,
	"btn_affiliates":      CmdAffiliates,
	"btn_promotion":       CmdPromotion,
	"btn_howto":           CmdHowTo,
	"btn_add_funds":       CmdAddFunds,
	"btn_start_earning":   CmdStartEarning,
	"btn_back":            CmdBack,
	"btn_channel_members": CmdChannelMembers,
	"btn_bot":             CmdBot,
	"btn_confirm":         CmdConfirm,
	"btn_cancel":          CmdCancel,
}

// slashCommands are matched on the first word of the text.
var slashCommands = map[string]Command{
	"/start":     CmdStart,
	"/stats":     CmdStats,
	"/broadcast": CmdBroadcast,
}

type commandHandler func(ctx context.Context, t *turn) error

// commandRoutes is the dispatch table. Every Command except CmdNone has an entry.
func (e *Engine) commandRoutes() map[Command]commandHandler {
	return map[Command]commandHandler{
		CmdStart:          e.handleStart,
		CmdAccount:        e.handleAccount,
		CmdCashout:        e.handleCashout,
		CmdAffiliates:     e.handleAffiliates,
		CmdPromotion:      e.handlePromotionMenu,
		CmdHowTo:          e.handleHowTo,
		CmdAddFunds:       e.handleAddFunds,
		CmdStartEarning:   e.handleStartEarning,
		CmdBack:           e.handleBack,
		CmdChannelMembers: e.handlePromotionType,
		CmdBot:            e.handlePromotionType,
		CmdConfirm:        e.handleConfirm,
		CmdCancel:         e.handleCancel,
		CmdPaymentMethod:  e.handlePaymentMethod,
		CmdStats:          e.adminOnly(CmdStats, e.handleStats),
		CmdBroadcast:      e.adminOnly(CmdBroadcast, e.handleBroadcast),
	}
}

// commandParser resolves text to a Command plus its argument.
type commandParser struct {
	buttons map[string]Command
	methods func(text string) (string, bool)
}

func newCommandParser(t *i18n.Translator, methods func(text string) (string, bool)) *commandParser {
	p := &commandParser{buttons: make(map[string]Command, len(buttonKeys)), methods: methods}
	for key, cmd := range buttonKeys {
		p.buttons[t.T(key)] = cmd
	}
	return p
}

func (p *commandParser) parse(text string) (Command, string) {
	if text == "" {
		return CmdNone, ""
	}
	if strings.HasPrefix(text, "/") {
		word, arg, _ := strings.Cut(text, " ")
		// "/start@BotName" in groups
		word, _, _ = strings.Cut(word, "@")
		if cmd, ok := slashCommands[strings.ToLower(word)]; ok {
			return cmd, strings.TrimSpace(arg)
		}
		return CmdNone, ""
	}
	if cmd, ok := p.buttons[text]; ok {
		return cmd, ""
	}
	// Typed confirmations are accepted without the emoji.
	switch strings.ToUpper(text) {
	case "CONFIRM":
		return CmdConfirm, ""
	case "CANCEL":
		return CmdCancel, ""
	}
	if id, ok := p.methods(text); ok {
		return CmdPaymentMethod, id
	}
	return CmdNone, ""
}
