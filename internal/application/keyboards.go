package application

import (
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
)

const (
	cbRefreshStats  = "refresh_stats"
	cbPayoutPrefix  = "payout_"
	cbConfirmPayout = "confirm_payout"
	cbCancelPayout  = "cancel_payout"
)

func (e *Engine) replyKeyboard(rows ...[]string) *adapter.ReplyMarkup {
	kb := &adapter.ReplyMarkup{}
	for _, row := range rows {
		buttons := make([]adapter.Button, 0, len(row))
		for _, key := range row {
			buttons = append(buttons, adapter.Button{Text: e.t.T(key)})
		}
		kb.Buttons = append(kb.Buttons, buttons)
	}
	return kb
}

func (e *Engine) mainMenu() *adapter.ReplyMarkup {
	return e.replyKeyboard(
		[]string{"btn_account", "btn_cashout"},
		[]string{"btn_affiliates", "btn_promotion"},
		[]string{"btn_howto", "btn_add_funds"},
		[]string{"btn_start_earning"},
	)
}

func (e *Engine) backMenu() *adapter.ReplyMarkup {
	return e.replyKeyboard([]string{"btn_back"})
}

func (e *Engine) promotionMenu() *adapter.ReplyMarkup {
	return e.replyKeyboard(
		[]string{"btn_channel_members", "btn_bot"},
		[]string{"btn_back"},
	)
}

func (e *Engine) detailsMenu() *adapter.ReplyMarkup {
	return e.replyKeyboard([]string{"btn_cancel", "btn_back"})
}

// cashoutMenu lists payment methods two per row, then Back.
func (e *Engine) cashoutMenu() *adapter.ReplyMarkup {
	kb := &adapter.ReplyMarkup{}
	var row []adapter.Button
	for _, m := range e.payouts.Methods() {
		row = append(row, adapter.Button{Text: m.ButtonText()})
		if len(row) == 2 {
			kb.Buttons = append(kb.Buttons, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Buttons = append(kb.Buttons, row)
	}
	kb.Buttons = append(kb.Buttons, []adapter.Button{{Text: e.t.T("btn_back")}})
	return kb
}

// cashoutInline offers the methods again under a minimum-not-met notice.
func cashoutInline(methods []model.PaymentMethod) *adapter.ReplyMarkup {
	kb := &adapter.ReplyMarkup{IsInline: true}
	for _, m := range methods {
		kb.Buttons = append(kb.Buttons, []adapter.Button{{Text: m.ButtonText(), Data: cbPayoutPrefix + m.ID}})
	}
	return kb
}

func (e *Engine) confirmInline() *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{
		IsInline: true,
		Buttons: [][]adapter.Button{{
			{Text: e.t.T("btn_confirm_inline"), Data: cbConfirmPayout},
			{Text: e.t.T("btn_cancel_inline"), Data: cbCancelPayout},
		}},
	}
}

// welcomeInline links the web app, channel and support chat; missing links are skipped.
func (e *Engine) welcomeInline() *adapter.ReplyMarkup {
	kb := &adapter.ReplyMarkup{IsInline: true}
	if e.cfg.WebAppURL != "" {
		kb.Buttons = append(kb.Buttons, []adapter.Button{{Text: e.t.T("btn_webapp"), URL: e.cfg.WebAppURL}})
	}
	var links []adapter.Button
	if e.cfg.ChannelLink != "" {
		links = append(links, adapter.Button{Text: e.t.T("btn_stay_updated"), URL: e.cfg.ChannelLink})
	}
	if e.cfg.SupportLink != "" {
		links = append(links, adapter.Button{Text: e.t.T("btn_need_help"), URL: e.cfg.SupportLink})
	}
	if len(links) > 0 {
		kb.Buttons = append(kb.Buttons, links)
	}
	if len(kb.Buttons) == 0 {
		return nil
	}
	return kb
}

func (e *Engine) statsInline() *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{
		IsInline: true,
		Buttons:  [][]adapter.Button{{{Text: e.t.T("btn_refresh_stats"), Data: cbRefreshStats}}},
	}
}
