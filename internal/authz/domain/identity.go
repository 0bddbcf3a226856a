package domain

// Account types.
const (
	AccountEmail  = "email"
	AccountMask   = "mask"
	AccountGoogle = "google"
	AccountGitHub = "github"
	AccountEth    = "eth"
	AccountWallet = "smart_contract_wallet"
)

// Account is one connected account of an identity.
type Account struct {
	URN      string `json:"urn"`
	Type     string `json:"type"`
	Alias    string `json:"alias"`
	Nickname string `json:"nickname,omitempty"`
}

// IsEmail reports whether the account can back the email claim.
func (a Account) IsEmail() bool {
	switch a.Type {
	case AccountEmail, AccountMask, AccountGoogle:
		return true
	}
	return false
}

// Profile is the public profile of an identity.
type Profile struct {
	URN     string `json:"urn"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`

	// ForwardTo names the identity this one was merged into.
	ForwardTo string    `json:"forwardTo,omitempty"`
	Accounts  []Account `json:"accounts,omitempty"`
}

// Client is a registered application.
type Client struct {
	ID           string   `json:"clientId"`
	Name         string   `json:"name"`
	SecretHash   string   `json:"secretHash"`
	RedirectURIs []string `json:"redirectUris,omitempty"`
	// Paymaster is set when the app sponsors smart wallet session keys.
	Paymaster bool `json:"paymaster,omitempty"`
}
