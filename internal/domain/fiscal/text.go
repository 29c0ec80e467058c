package fiscal

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Limites de tamanho do leiaute para os campos de texto livre.
const (
	maxNameLen        = 60
	maxDescriptionLen = 120
	maxStreetLen      = 60
)

// cleanText normaliza para NFC, troca caracteres de controle por espaço, colapsa espaços
// e corta em limit runes. O schema rejeita quebras de linha e espaços nas pontas.
func cleanText(s string, limit int) string {
	t := transform.Chain(runes.Map(controlToSpace), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Join(strings.Fields(out), " ")
	if r := []rune(out); limit > 0 && len(r) > limit {
		out = strings.TrimSpace(string(r[:limit]))
	}
	return out
}

func controlToSpace(r rune) rune {
	if unicode.IsControl(r) {
		return ' '
	}
	return r
}

// ASCIIFold remove acentos (busca no histórico e nomes de arquivo).
func ASCIIFold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
