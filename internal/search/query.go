package search

import (
	"regexp"
	"strings"

	"subservient/internal/textutil"
)

var (
	yearPattern        = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	bracketGroup       = regexp.MustCompile(`[\[\(\{][^\]\)\}]*[\]\)\}]`)
	trailingLangTag    = regexp.MustCompile(`(?i)\s*\[[a-z]{2}\]?$`)
	langTag            = regexp.MustCompile(`(?i)\[[a-z]{2}\]`)
	bracketChars       = regexp.MustCompile(`[\[\](){}]`)
	trailingShortNum   = regexp.MustCompile(`(^|\D)\d{1,2}$`)
	shortNumber        = regexp.MustCompile(`\b\d{1,2}\b`)
	anyNumber          = regexp.MustCompile(`\b\d+\b`)
	separatorChars     = regexp.MustCompile(`[\[\]\(\)\{\}_\+\.-]`)
	nonLetters         = regexp.MustCompile(`[^a-zA-Z ]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	singleLetterWords  = map[string]struct{}{"a": {}, "i": {}, "z": {}, "o": {}, "u": {}}
	yearTrimCharacters = " ._-()[]"
)

var separatorReplacer = strings.NewReplacer(".", " ", "_", " ")

// Builder builds queries using a deny-list of release metadata terms.
type Builder struct {
	unwanted *regexp.Regexp
}

// NewBuilder compiles the deny-list. Terms match whole words, case-insensitively.
func NewBuilder(unwantedTerms []string) *Builder {
	var quoted []string
	for _, term := range unwantedTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	b := &Builder{}
	if len(quoted) > 0 {
		b.unwanted = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return b
}

// Strict returns the rung 1 query for a video name (without extension).
// When a year is present everything after it is dropped and the year stays
// as the last token; otherwise the simplified title is used. Standalone
// one and two digit numbers are removed in both cases.
func (b *Builder) Strict(name string) string {
	name = textutil.FoldAccents(name)
	var query string
	if _, end, ok := lastYear(name); ok {
		left := strings.TrimRight(name[:end], yearTrimCharacters)
		left = bracketGroup.ReplaceAllString(left, " ")
		left = b.stripUnwanted(separatorReplacer.Replace(left))
		query = strings.TrimSpace(left)
	} else {
		query = b.Simplified(name)
	}
	return RemoveShortNumbers(cleanQuery(query))
}

// Simplified returns the aggressive rung 3 query: letters only, no years,
// no deny-listed terms, no bracketed groups.
func (b *Builder) Simplified(name string) string {
	cleaned := strings.ReplaceAll(textutil.FoldAccents(name), ".", " ")
	cleaned = b.stripUnwanted(cleaned)
	cleaned = bracketGroup.ReplaceAllString(cleaned, "")
	cleaned = anyNumber.ReplaceAllString(cleaned, "")
	cleaned = separatorChars.ReplaceAllString(cleaned, " ")
	cleaned = nonLetters.ReplaceAllString(cleaned, "")
	words := strings.Fields(cleaned)

	kept := make([]string, 0, len(words))
	for i, word := range words {
		if len(word) == 1 {
			if _, ok := singleLetterWords[strings.ToLower(word)]; !ok {
				var left, right string
				if i > 0 {
					left = words[i-1]
				}
				if i < len(words)-1 {
					right = words[i+1]
				}
				if len(left) <= 1 && len(right) <= 1 {
					continue
				}
			}
		}
		kept = append(kept, word)
	}
	return collapseRepeats(strings.Join(kept, " "))
}

// Release returns the release name as a query: separators become spaces
// and bracket characters go, but nothing is dropped. Catalogs that index
// uploads by release name can match it when every title query fails.
func (b *Builder) Release(name string) string {
	name = bracketChars.ReplaceAllString(textutil.FoldAccents(name), " ")
	return strings.Join(strings.Fields(separatorReplacer.Replace(name)), " ")
}

// lastYear locates the last four digit year in value. Underscores count as
// separators so "Movie_2010_720p" still yields 2010.
func lastYear(value string) (int, int, bool) {
	locs := yearPattern.FindAllStringIndex(strings.ReplaceAll(value, "_", " "), -1)
	if len(locs) == 0 {
		return 0, 0, false
	}
	last := locs[len(locs)-1]
	return last[0], last[1], true
}

func (b *Builder) stripUnwanted(value string) string {
	if b.unwanted == nil {
		return value
	}
	return b.unwanted.ReplaceAllString(value, "")
}

// cleanQuery drops two-letter language tags, bracket characters, dots, and a
// trailing one or two digit number.
func cleanQuery(query string) string {
	query = strings.TrimSpace(trailingLangTag.ReplaceAllString(query, ""))
	query = langTag.ReplaceAllString(query, "")
	query = bracketChars.ReplaceAllString(query, "")
	query = strings.ReplaceAll(query, ".", " ")
	query = trailingShortNum.ReplaceAllString(query, "$1")
	return strings.TrimSpace(query)
}

// RemoveShortNumbers removes standalone one and two digit numbers. Years and
// three digit numbers survive.
func RemoveShortNumbers(query string) string {
	query = shortNumber.ReplaceAllString(query, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(query, " "))
}

// collapseRepeats shortens runs of three or more identical letters to one.
func collapseRepeats(value string) string {
	var b strings.Builder
	runes := []rune(value)
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		r := runes[i]
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if isLetter && j-i >= 3 {
			b.WriteRune(r)
		} else {
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// FilterWords returns the lowercased tokens every filtered catalog file name
// must contain. With a year present the tokens are the words left of the
// year plus the year itself.
func FilterWords(query string) []string {
	folded := textutil.FoldLower(query)
	if start, end, ok := lastYear(folded); ok {
		words := strings.Fields(folded[:start])
		return append(words, folded[start:end])
	}
	return strings.Fields(folded)
}

// Matches reports whether fileName contains every filter word.
func Matches(fileName string, words []string) bool {
	name := textutil.FoldLower(fileName)
	for _, word := range words {
		if !strings.Contains(name, word) {
			return false
		}
	}
	return true
}
