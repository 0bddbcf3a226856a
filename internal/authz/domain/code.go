package domain

import "time"

// ResponseTypeCode is the only response type the authorize endpoint accepts.
const ResponseTypeCode = "code"

// DefaultCodeTTL is how long an issued exchange code stays redeemable.
const DefaultCodeTTL = 120 * time.Second

// ExchangeCode binds a one-time authorization code to the identity that
// approved it and the client allowed to redeem it.
type ExchangeCode struct {
	Code        string      `json:"code"`
	Identity    string      `json:"identity"`
	ClientID    string      `json:"clientId"`
	RedirectURI string      `json:"redirectUri"`
	Scope       []string    `json:"scope"`
	State       string      `json:"state,omitempty"`
	PersonaData PersonaData `json:"personaData,omitempty"`
	CreatedAt   time.Time   `json:"timestamp"`
}

// Expired reports whether the code is older than ttl at now.
func (c ExchangeCode) Expired(now time.Time, ttl time.Duration) bool {
	if c.CreatedAt.IsZero() {
		return true
	}
	return !now.Before(c.CreatedAt.Add(ttl))
}
