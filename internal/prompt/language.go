package prompt

import "strings"

// Language selects the prompt template. Only German and English exist.
type Language string

const (
	German  Language = "de"
	English Language = "en"
)

// ParseLanguage maps raw caller input to a Language. It never fails: anything
// other than "en" (trimmed, any case) selects German.
func ParseLanguage(raw string) Language {
	if strings.EqualFold(strings.TrimSpace(raw), string(English)) {
		return English
	}
	return German
}

func (l Language) String() string { return string(l) }
