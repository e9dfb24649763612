package model

import (
	"fmt"

	"lightning-sats-bot/internal/domain"
)

type EventType string

const (
	EventConnected           EventType = "connected"
	EventAuthError           EventType = "auth_error"
	EventAdReward            EventType = "ad_reward"
	EventWithdrawalRequested EventType = "withdrawal_requested"
	EventWithdrawalApproved  EventType = "withdrawal_approved"
	EventWithdrawalRejected  EventType = "withdrawal_rejected"
	EventReferralBonus       EventType = "referral_bonus"
	EventBalanceUpdate       EventType = "balance_update"
	EventPromotionApproved   EventType = "promotion_approved"
	EventPromotionRejected   EventType = "promotion_rejected"
	EventTaskDeleted         EventType = "task_deleted"
	EventTaskRemoved         EventType = "task_removed"
)

var knownEvents = map[EventType]struct{}{
	EventConnected: {}, EventAuthError: {}, EventAdReward: {}, EventWithdrawalRequested: {},
	EventWithdrawalApproved: {}, EventWithdrawalRejected: {}, EventReferralBonus: {}, EventBalanceUpdate: {},
	EventPromotionApproved: {}, EventPromotionRejected: {}, EventTaskDeleted: {}, EventTaskRemoved: {},
}

// ParseEventType resolves a wire name; "reward" is accepted as ad_reward.
func ParseEventType(s string) (EventType, bool) {
	if s == "reward" {
		return EventAdReward, true
	}
	t := EventType(s)
	_, ok := knownEvents[t]
	return t, ok
}

// OutboundEvent is a push notification addressed to one user.
// Only the fields a variant needs are set; the rest are omitted on the wire.
type OutboundEvent struct {
	Type         EventType `json:"type"`
	UserID       string    `json:"-"`
	Message      string    `json:"message,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Title        string    `json:"title,omitempty"`
	Refunded     bool      `json:"refunded,omitempty"`
	RefundAmount string    `json:"refundAmount,omitempty"`
	PromotionID  string    `json:"promotionId,omitempty"`
}

// Validate checks that a domain event names a user and carries its variant's fields.
func (e OutboundEvent) Validate() error {
	if _, ok := knownEvents[e.Type]; !ok {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidArgument, e.Type)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: event without user", domain.ErrInvalidArgument)
	}
	switch e.Type {
	case EventAdReward, EventWithdrawalRequested, EventWithdrawalApproved, EventWithdrawalRejected,
		EventReferralBonus, EventBalanceUpdate:
		if e.Amount == "" {
			return fmt.Errorf("%w: %s requires amount", domain.ErrInvalidArgument, e.Type)
		}
	case EventPromotionApproved, EventPromotionRejected, EventTaskDeleted:
		if e.Title == "" {
			return fmt.Errorf("%w: %s requires title", domain.ErrInvalidArgument, e.Type)
		}
	case EventTaskRemoved:
		if e.PromotionID == "" {
			return fmt.Errorf("%w: %s requires promotionId", domain.ErrInvalidArgument, e.Type)
		}
	}
	return nil
}

// EndsPromotion reports whether the event retires the promotion it names.
func (e OutboundEvent) EndsPromotion() bool {
	switch e.Type {
	case EventPromotionRejected, EventTaskDeleted, EventTaskRemoved:
		return e.PromotionID != ""
	}
	return false
}

// FormatAmount renders money the way the web client parses it.
func FormatAmount(v float64) string { return fmt.Sprintf("%.5f", v) }
