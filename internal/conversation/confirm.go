package conversation

import (
	"strings"
	"unicode"
)

type confirmation int

const (
	confirmUnknown confirmation = iota
	confirmYes
	confirmNo
)

var yesPhrases = map[string]bool{
	"sim":            true,
	"s":              true,
	"ss":             true,
	"sim pode":       true,
	"pode":           true,
	"pode sim":       true,
	"pode confirmar": true,
	"confirmo":       true,
	"confirma":       true,
	"confirmar":      true,
	"confirmado":     true,
	"isso":           true,
	"isso mesmo":     true,
	"claro":          true,
	"com certeza":    true,
	"ok":             true,
	"okay":           true,
	"beleza":         true,
	"yes":            true,
	"y":              true,
	"yep":            true,
	"sure":           true,
	"confirm":        true,
}

var noPhrases = map[string]bool{
	"nao":          true,
	"não":          true,
	"n":            true,
	"nao quero":    true,
	"não quero":    true,
	"negativo":     true,
	"nem":          true,
	"no":           true,
	"nope":         true,
	"nao obrigado": true,
	"não obrigado": true,
}

var cancelPhrases = map[string]bool{
	"cancelar":     true,
	"cancela":      true,
	"cancel":       true,
	"deixa pra la": true,
	"deixa pra lá": true,
	"esquece":      true,
	"stop":         true,
}

// normalizePhrase lowercases, drops punctuation and collapses whitespace.
func normalizePhrase(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseConfirmation matches text against the explicit yes/no whitelists.
// Anything else is confirmUnknown.
func parseConfirmation(text string) confirmation {
	phrase := normalizePhrase(text)
	switch {
	case yesPhrases[phrase]:
		return confirmYes
	case noPhrases[phrase]:
		return confirmNo
	default:
		return confirmUnknown
	}
}

func isCancel(text string) bool {
	return cancelPhrases[normalizePhrase(text)]
}
