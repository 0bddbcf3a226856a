package domain

import "encoding/json"

// SelectionAll marks a persona claim where the user shared every account
// rather than an explicit list.
const SelectionAll = "ALL"

// PersonaData holds the client-specific choices a user made while
// authorizing, keyed by scope name. Values are either a single account URN
// (email), a list of account URNs, or SelectionAll.
type PersonaData map[string]any

// Merge returns a copy of p overlaid with next. Keys present in next win.
func (p PersonaData) Merge(next PersonaData) PersonaData {
	out := make(PersonaData, len(p)+len(next))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// String returns the claim under key when it holds a single value.
func (p PersonaData) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Strings returns the claim under key as a list. The second result is false
// when the claim is missing or is not a list.
func (p PersonaData) Strings(key string) ([]string, bool) {
	switch v := p[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// AppData is the opaque per-app blob stored on a session. Only the session
// key list is interpreted by the service.
type AppData struct {
	SmartWalletSessionKeys []SessionKey    `json:"smartWalletSessionKeys,omitempty"`
	Extra                  json.RawMessage `json:"-"`
}

// SessionKey is a smart wallet session key issued on behalf of the app.
type SessionKey struct {
	Address        string `json:"publicSessionKey"`
	SmartContract  string `json:"smartContractWalletAddress"`
	DevEnvironment bool   `json:"devEnvironment,omitempty"`
}

// MarshalJSON folds Extra back into the object so unknown fields survive a
// round trip.
func (a AppData) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(a.Extra) > 0 {
		if err := json.Unmarshal(a.Extra, &fields); err != nil {
			return nil, err
		}
	}
	keys, err := json.Marshal(a.SmartWalletSessionKeys)
	if err != nil {
		return nil, err
	}
	if len(a.SmartWalletSessionKeys) > 0 {
		fields["smartWalletSessionKeys"] = keys
	} else {
		delete(fields, "smartWalletSessionKeys")
	}
	return json.Marshal(fields)
}

// UnmarshalJSON keeps every field in Extra and decodes the session keys.
func (a *AppData) UnmarshalJSON(data []byte) error {
	var known struct {
		SmartWalletSessionKeys []SessionKey `json:"smartWalletSessionKeys"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	a.SmartWalletSessionKeys = known.SmartWalletSessionKeys
	a.Extra = append(a.Extra[:0], data...)
	return nil
}
