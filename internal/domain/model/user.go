package model

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"lightning-sats-bot/internal/domain"

	"github.com/oklog/ulid/v2"
)

// TelegramProfile is the identity data carried by every inbound update.
type TelegramProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// User is a domain entity representing a Telegram user in our system.
// WithdrawBalance holds earnings that can be cashed out; MainBalance funds promotions.
type User struct {
	ID              string
	TelegramID      int64
	Username        string
	FirstName       string
	LastName        string
	ReferralCode    string
	WithdrawBalance float64
	MainBalance     float64
	TotalEarned     float64
	CreatedAt       time.Time
	LastActiveAt    time.Time
}

func NewUser(id string, p TelegramProfile) (*User, error) {
	if p.TelegramID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = ulid.Make().String()
	}
	now := time.Now()
	return &User{
		ID:           id,
		TelegramID:   p.TelegramID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		ReferralCode: NewReferralCode(),
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }

// Apply copies non-empty profile fields onto the user.
func (u *User) Apply(p TelegramProfile) {
	if p.Username != "" {
		u.Username = p.Username
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	if p.LastName != "" {
		u.LastName = p.LastName
	}
}

// DisplayName prefers the first name, then the username.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "User"
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "User"
	}
}

// Handle renders "@username" when available.
func (u *User) Handle() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.DisplayName()
}

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewReferralCode returns a public 10-character code, unrelated to any internal id.
func NewReferralCode() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strings.ToUpper(ulid.Make().String()[16:])
	}
	return codeEncoding.EncodeToString(b[:])[:10]
}

// AccountSummary is what the account dashboard shows.
type AccountSummary struct {
	User             *User
	InvitedCount     int
	ReferralEarnings float64
}
