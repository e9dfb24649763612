package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
)

type webAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// ValidateInitData checks a Telegram WebApp initData string signed for botToken and
// returns the embedded user. Data older than maxAge is rejected; maxAge 0 skips the check.
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (model.TelegramProfile, error) {
	var none model.TelegramProfile
	vals, err := url.ParseQuery(initData)
	if err != nil {
		return none, fmt.Errorf("%w: malformed init data", domain.ErrAuth)
	}
	got := vals.Get("hash")
	if got == "" {
		return none, fmt.Errorf("%w: init data without hash", domain.ErrAuth)
	}

	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+vals.Get(k))
	}

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	want := hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(lines, "\n"))))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(got))) {
		return none, fmt.Errorf("%w: init data signature mismatch", domain.ErrAuth)
	}

	if maxAge > 0 {
		ts, err := strconv.ParseInt(vals.Get("auth_date"), 10, 64)
		if err != nil {
			return none, fmt.Errorf("%w: bad auth_date", domain.ErrAuth)
		}
		if now.Sub(time.Unix(ts, 0)) > maxAge {
			return none, fmt.Errorf("%w: init data expired", domain.ErrAuth)
		}
	}

	var u webAppUser
	if err := json.Unmarshal([]byte(vals.Get("user")), &u); err != nil || u.ID <= 0 {
		return none, fmt.Errorf("%w: init data without user", domain.ErrAuth)
	}
	return model.TelegramProfile{TelegramID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}, nil
}

func hmacSHA256(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}
