package language

import (
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var namer = display.English.Languages()

// bibliographic maps ISO 639-2/B codes, still common in container tags and
// operator configs, to their terminology form understood by the CLDR tables.
var bibliographic = map[string]string{
	"alb": "sqi", "arm": "hye", "baq": "eus", "bur": "mya", "chi": "zho",
	"cze": "ces", "dut": "nld", "fre": "fra", "geo": "kat", "ger": "deu",
	"gre": "ell", "ice": "isl", "mac": "mkd", "may": "msa", "per": "fas",
	"rum": "ron", "slo": "slk", "tib": "bod", "wel": "cym",
}

func parseBase(code string) (xlanguage.Base, error) {
	if mapped, ok := bibliographic[code]; ok {
		code = mapped
	}
	return xlanguage.ParseBase(code)
}

// Normalize maps a configured code to its two-letter ISO 639-1 form.
// Codes without a two-letter form are rejected.
func Normalize(code string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return "", fmt.Errorf("empty language code")
	}
	base, err := parseBase(trimmed)
	if err != nil {
		return "", fmt.Errorf("unknown language code %q", code)
	}
	short := base.String()
	if len(short) != 2 {
		return "", fmt.Errorf("language %q has no two-letter code", code)
	}
	return short, nil
}

// ToISO2 is Normalize without the error; unknown input yields "".
func ToISO2(code string) string {
	short, err := Normalize(code)
	if err != nil {
		return ""
	}
	return short
}

// DisplayName returns a human-readable language name, or the upper-cased code
// when the code is not recognized.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	base, err := parseBase(strings.ToLower(trimmed))
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := namer.Name(base); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// NormalizeList normalizes and de-duplicates codes while keeping their order.
// The first invalid code aborts with an error.
func NormalizeList(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		short, err := Normalize(code)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[short]; ok {
			continue
		}
		seen[short] = struct{}{}
		out = append(out, short)
	}
	return out, nil
}
