package model

import "time"

// Payment method identifiers with dedicated validation rules.
const (
	MethodTelegramStars = "telegram_stars"
	MethodTetherPolygon = "tether_polygon"
	MethodTonCoin       = "ton_coin"
	MethodLitecoin      = "litecoin"
)

type PaymentMethod struct {
	ID            string
	Name          string
	Emoji         string
	MinWithdrawal float64
}

// ButtonText is the literal reply-keyboard label for the method.
func (m PaymentMethod) ButtonText() string { return m.Emoji + " " + m.Name }

const (
	PayoutStatusPending  = "pending"
	PayoutStatusApproved = "approved"
	PayoutStatusRejected = "rejected"
)

type PayoutRequest struct {
	ID        string
	UserID    string
	Amount    float64
	MethodID  string
	Details   string
	Status    string
	CreatedAt time.Time
}

// PayoutResult is the outcome of a payout-creation domain action.
// Success=false carries a user-facing reason.
type PayoutResult struct {
	Success   bool
	Message   string
	RequestID string
}
