package protocol

import (
	"html"
	"strings"
)

const (
	maxPlayerNameLength = 20
	maxLobbyNameLength  = 40
)

// SanitizeName trims a player-supplied name to alphanumerics and escapes
// HTML metacharacters, grounded on the source's sanitizeName
// (server/handler_utils.go) — names flow unmodified into broadcast chat
// and lobby listings, so they're defused the same way here.
func SanitizeName(name string) string {
	if len(name) > maxPlayerNameLength {
		name = name[:maxPlayerNameLength]
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	return html.EscapeString(cleaned)
}

// SanitizeLobbyName truncates to a longer length cap, trims surrounding
// whitespace and escapes HTML metacharacters, since a lobby name is purely
// cosmetic and shown to many prospective joiners rather than just combat
// log lines. Unlike SanitizeName it does not strip punctuation.
func SanitizeLobbyName(name string) string {
	if len(name) > maxLobbyNameLength {
		name = name[:maxLobbyNameLength]
	}
	return html.EscapeString(strings.TrimSpace(name))
}
