// Package normalize turns raw bot replies into cleaned text and key/value fields.
package normalize

import (
	"regexp"
	"strings"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// Normalizer is the text normalization collaborator consumed by the collector
// and classifier.
type Normalizer interface {
	Normalize(raw string) domain.Normalized
}

var (
	brandPattern  = regexp.MustCompile(`(?is)^\[#LEDER_BOT\]`)
	headerPattern = regexp.MustCompile(`(?is)^\[.*?\]\s*→\s*.*?\[.*?\](\r?\n){1,2}`)
	footerPattern = regexp.MustCompile(`(?is)((\r?\n){1,2}\[|Página\s*\d+/\d+.*|(\r?\n){1,2}Por favor, usa el formato correcto.*|↞ Anterior|Siguiente ↠.*|Credits\s*:.+|Wanted for\s*:.+|\s*@lederdata.*|(\r?\n){1,2}\s*Marca\s*@lederdata.*|(\r?\n){1,2}\s*Créditos\s*:\s*\d+)`)
	dashPattern   = regexp.MustCompile(`-{3,}`)

	dniPattern   = regexp.MustCompile(`(?i)DNI\s*:\s*(\d{8})`)
	rucPattern   = regexp.MustCompile(`(?i)RUC\s*:\s*(\d{11})`)
	photoPattern = regexp.MustCompile(`(?i)Foto\s*:\s*(rostro|huella|firma|adverso|reverso)`)

	notFoundPattern = regexp.MustCompile(`(?is)\[⚠\x{FE0F}?\]\s*(no se encontro información|no se encontró información|no se han encontrado resultados|no se encontró una|no hay resultados|no tenemos datos|no se encontraron registros)`)
)

// RegexNormalizer implements the cleaning grammar of the upstream bots' reply format.
type RegexNormalizer struct {
	Brand string
}

// NewRegexNormalizer creates a normalizer that rebrands the upstream tag with brand.
func NewRegexNormalizer(brand string) *RegexNormalizer {
	return &RegexNormalizer{Brand: brand}
}

// Normalize strips headers, footers and separators, then extracts fields.
func (n *RegexNormalizer) Normalize(raw string) domain.Normalized {
	out := domain.Normalized{Fields: make(map[string]string)}
	if raw == "" {
		return out
	}

	text := raw
	if n.Brand != "" {
		text = brandPattern.ReplaceAllLiteralString(text, "["+n.Brand+"]")
	}
	text = headerPattern.ReplaceAllString(text, "")
	text = footerPattern.ReplaceAllString(text, "")
	text = dashPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	out.Text = text

	if m := dniPattern.FindStringSubmatch(text); m != nil {
		out.Fields["dni"] = m[1]
	}
	if m := rucPattern.FindStringSubmatch(text); m != nil {
		out.Fields["ruc"] = m[1]
	}
	if m := photoPattern.FindStringSubmatch(text); m != nil {
		out.Fields["photo_type"] = strings.ToLower(m[1])
	}

	// Not-found phrasings are matched on the raw text too: the footer rules can
	// swallow them when they follow a bracketed line.
	if notFoundPattern.MatchString(text) || notFoundPattern.MatchString(raw) {
		out.NotFound = true
	}

	return out
}
