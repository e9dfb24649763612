package usecase

import (
	"fmt"
	"strings"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
)

// ValidatePaymentDetails checks details against the format required by methodID.
// Input is trimmed before checking; the returned string is the value to store.
func ValidatePaymentDetails(methodID, details string) (string, error) {
	d := strings.TrimSpace(details)
	ok := false
	switch methodID {
	case model.MethodTelegramStars:
		ok = d != "" && !strings.HasPrefix(d, "@")
	case model.MethodTetherPolygon:
		ok = strings.HasPrefix(d, "0x") && len(d) == 42
	case model.MethodTonCoin:
		ok = (strings.HasPrefix(d, "EQ") || strings.HasPrefix(d, "UQ")) && len(d) == 48
	case model.MethodLitecoin:
		ok = (strings.HasPrefix(d, "L") || strings.HasPrefix(d, "M")) && len(d) >= 26 && len(d) <= 35
	default:
		ok = d != ""
	}
	if !ok {
		return "", fmt.Errorf("%w: bad %s details", domain.ErrValidation, methodID)
	}
	return d, nil
}

var promotionURLPrefixes = []string{"https://t.me/", "http://t.me/"}

// ValidatePromotionURL accepts only Telegram links.
func ValidatePromotionURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	for _, p := range promotionURLPrefixes {
		if strings.HasPrefix(u, p) {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: not a telegram url", domain.ErrValidation)
}

// CheckMinimum fails with ErrInsufficientFunds when balance is below the method minimum.
func CheckMinimum(m model.PaymentMethod, balance float64) error {
	if balance < m.MinWithdrawal {
		return fmt.Errorf("%w: %.2f below %s minimum %.2f", domain.ErrInsufficientFunds, balance, m.ID, m.MinWithdrawal)
	}
	return nil
}

// CheckFunding fails with ErrInsufficientFunds when the main balance cannot cover cost.
func CheckFunding(mainBalance, cost float64) error {
	if mainBalance < cost {
		return fmt.Errorf("%w: main balance %.2f, required %.2f", domain.ErrInsufficientFunds, mainBalance, cost)
	}
	return nil
}
