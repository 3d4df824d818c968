package google

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// State is carried through the consent redirect.
type State struct {
	UserID       string `json:"userId,omitempty"`
	ReturnOrigin string `json:"returnOrigin,omitempty"`
}

// EncodeState serializes s as unpadded base64url JSON.
func EncodeState(s State) string {
	data, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeState parses a value produced by EncodeState. Malformed input yields
// the zero State.
func DecodeState(value string) State {
	value = strings.TrimRight(strings.TrimSpace(value), "=")
	if value == "" {
		return State{}
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return State{}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}
	}
	s.ReturnOrigin = ReturnOrigin(s.ReturnOrigin)
	return s
}

// ReturnOrigin reduces an http(s) URL to its origin. Other schemes and
// unparsable values yield "".
func ReturnOrigin(value string) string {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
