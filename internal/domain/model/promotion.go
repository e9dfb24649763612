package model

import (
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain"

	"github.com/oklog/ulid/v2"
)

type PromotionType string

const (
	PromotionSubscribe PromotionType = "subscribe"
	PromotionBot       PromotionType = "bot"
)

// Title is the human readable campaign kind.
func (t PromotionType) Title() string {
	switch t {
	case PromotionSubscribe:
		return "Telegram: subscribe to the channel / join the chat"
	case PromotionBot:
		return "Telegram: launch the bot"
	default:
		return string(t)
	}
}

// PromotionParams are the fixed economics of a promotion sub-type.
type PromotionParams struct {
	Type         PromotionType
	AdCost       float64
	RewardAmount float64
	TotalSlots   int
}

type Promotion struct {
	ID             string
	CreatorID      string
	Type           PromotionType
	Title          string
	Description    string
	URL            string
	RewardAmount   float64
	AdCost         float64
	TotalSlots     int
	CompletedCount int
	IsActive       bool
	CreatedAt      time.Time
}

func NewPromotion(creatorID string, p PromotionParams, url string) (*Promotion, error) {
	if creatorID == "" || url == "" || p.TotalSlots <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	title := p.Type.Title()
	return &Promotion{
		ID:           ulid.Make().String(),
		CreatorID:    creatorID,
		Type:         p.Type,
		Title:        title,
		Description:  fmt.Sprintf("%s (%s)", title, url),
		URL:          url,
		RewardAmount: p.RewardAmount,
		AdCost:       p.AdCost,
		TotalSlots:   p.TotalSlots,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}, nil
}

// Claimable reports whether the promotion is active and has free slots.
func (p *Promotion) Claimable() bool {
	return p != nil && p.IsActive && p.CompletedCount < p.TotalSlots
}

// TaskResult is the outcome of completing a promotion task.
type TaskResult struct {
	Success bool
	Message string
}

type Referral struct {
	ID           string
	ReferrerID   string
	RefereeID    string
	Status       string
	RewardAmount float64
	CreatedAt    time.Time
}

type AppStats struct {
	TotalUsers            int
	ActiveUsersToday      int
	TotalInvites          int
	NewUsersLast24h       int
	TotalEarnings         float64
	TotalReferralEarnings float64
	TotalPayouts          float64
}

// BroadcastResult is the tally reported back to the admin.
type BroadcastResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}
