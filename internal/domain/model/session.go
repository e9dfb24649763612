package model

import "time"

type FlowKind string

const (
	FlowNone      FlowKind = ""
	FlowPayout    FlowKind = "payout"
	FlowPromotion FlowKind = "promotion"
)

type Step string

const (
	StepAwaitingDetails      Step = "awaiting_details"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	StepAwaitingChannelURL   Step = "awaiting_channel_url"
	StepAwaitingBotURL       Step = "awaiting_bot_url"
)

var flowSteps = map[FlowKind][]Step{
	FlowPayout:    {StepAwaitingDetails, StepAwaitingConfirmation},
	FlowPromotion: {StepAwaitingChannelURL, StepAwaitingBotURL},
}

type PayoutPayload struct {
	MethodID string  `json:"method_id"`
	Amount   float64 `json:"amount"`
	Details  string  `json:"details,omitempty"`
}

type PromotionPayload struct {
	Type         PromotionType `json:"type"`
	AdCost       float64       `json:"ad_cost"`
	RewardAmount float64       `json:"reward_amount"`
	TotalSlots   int           `json:"total_slots"`
	URL          string        `json:"url,omitempty"`
}

// Params returns the economics the payload was opened with.
func (p PromotionPayload) Params() PromotionParams {
	return PromotionParams{Type: p.Type, AdCost: p.AdCost, RewardAmount: p.RewardAmount, TotalSlots: p.TotalSlots}
}

// ConversationSession is the ephemeral per-chat flow state. At most one exists per chat.
type ConversationSession struct {
	ChatID    int64             `json:"chat_id"`
	Flow      FlowKind          `json:"flow"`
	Step      Step              `json:"step"`
	Payout    *PayoutPayload    `json:"payout,omitempty"`
	Promotion *PromotionPayload `json:"promotion,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewPayoutSession(chatID int64, methodID string, amount float64) *ConversationSession {
	return &ConversationSession{
		ChatID: chatID,
		Flow:   FlowPayout,
		Step:   StepAwaitingDetails,
		Payout: &PayoutPayload{MethodID: methodID, Amount: amount},
	}
}

func NewPromotionSession(chatID int64, p PromotionParams) *ConversationSession {
	step := StepAwaitingChannelURL
	if p.Type == PromotionBot {
		step = StepAwaitingBotURL
	}
	return &ConversationSession{
		ChatID: chatID,
		Flow:   FlowPromotion,
		Step:   step,
		Promotion: &PromotionPayload{
			Type:         p.Type,
			AdCost:       p.AdCost,
			RewardAmount: p.RewardAmount,
			TotalSlots:   p.TotalSlots,
		},
	}
}

// Valid reports whether Step is declared for Flow and the flow payload is present.
func (s *ConversationSession) Valid() bool {
	if s == nil {
		return false
	}
	switch s.Flow {
	case FlowPayout:
		if s.Payout == nil {
			return false
		}
	case FlowPromotion:
		if s.Promotion == nil {
			return false
		}
	default:
		return false
	}
	for _, st := range flowSteps[s.Flow] {
		if st == s.Step {
			return true
		}
	}
	return false
}

// AwaitingPayoutDetails is true when free text should be read as payment details.
func (s *ConversationSession) AwaitingPayoutDetails() bool {
	return s != nil && s.Flow == FlowPayout && s.Step == StepAwaitingDetails
}

func (s *ConversationSession) AwaitingPayoutConfirmation() bool {
	return s != nil && s.Flow == FlowPayout && s.Step == StepAwaitingConfirmation && s.Payout != nil && s.Payout.Details != ""
}

// AwaitingPromotionURL is true in either URL-collection step.
func (s *ConversationSession) AwaitingPromotionURL() bool {
	return s != nil && s.Flow == FlowPromotion &&
		(s.Step == StepAwaitingChannelURL || s.Step == StepAwaitingBotURL)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *ConversationSession) Clone() *ConversationSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Payout != nil {
		p := *s.Payout
		c.Payout = &p
	}
	if s.Promotion != nil {
		p := *s.Promotion
		c.Promotion = &p
	}
	return &c
}
