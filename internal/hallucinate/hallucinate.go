// Package hallucinate implements the text layer of the hallucination
// filter: artifact rules applied to a segment's transcribed text,
// independent of the token-probability floor the orchestrator applies
// inline.
package hallucinate

import "strings"

// DefaultPhrases is the banned-phrase list the Filter rejects on. Phrases
// longer than 4 runes are rejected as a case-insensitive substring match;
// phrases of length <= 4 are rejected only on an exact match after trimming
// surrounding punctuation — otherwise "Ah" would reject "Ahmet geldi".
var DefaultPhrases = []string{
	"altyazı", "sesli betimleme", "senkron", "www.", ".com",
	"izlediğiniz için", "teşekkürler", "thank you", "thanks for watching",
	"abone ol", "videoyu beğen", "bir sonraki videoda",
	"devam edecek", "transcription:", "subtitle:",
	"2分", "ご視聴",
	"i'm going to go", "okay.", "bye.",
	"hıhı", "pffft", "ehem", "hmm", "aa", "ah", "oh", "eh",
}

// Filter checks segment text against the text-artifact rules. It is
// immutable after construction and safe for concurrent use.
type Filter struct {
	phrases []string
}

// New creates a Filter. A nil or empty phrases slice uses DefaultPhrases.
func New(phrases []string) *Filter {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	lower := make([]string, len(phrases))
	for i, p := range phrases {
		lower[i] = strings.ToLower(p)
	}
	return &Filter{phrases: lower}
}

// IsHallucination reports whether text should be dropped: empty, too
// short, punctuation-only, bracket/paren-wrapped, containing a banned
// substring (phrases longer than 4 runes), or exactly matching a banned
// short phrase after trimming surrounding punctuation.
func (f *Filter) IsHallucination(text string) bool {
	if text == "" {
		return true
	}
	if len([]rune(text)) < 2 {
		return true
	}
	if strings.Trim(text, " \t\n\v\f\r.,?!") == "" {
		return true
	}

	runes := []rune(text)
	first, last := runes[0], runes[len(runes)-1]
	if first == '[' && last == ']' {
		return true
	}
	if first == '(' && last == ')' {
		return true
	}

	lower := strings.ToLower(text)
	for _, phrase := range f.phrases {
		if len([]rune(phrase)) > 4 && strings.Contains(lower, phrase) {
			return true
		}
	}

	stripped := strings.TrimFunc(lower, isPunct)
	for _, phrase := range f.phrases {
		if len([]rune(phrase)) <= 4 && stripped == strings.TrimFunc(phrase, isPunct) {
			return true
		}
	}

	return false
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '?', '!', ';', ':', '\'', '"', '-', '(', ')', '[', ']':
		return true
	default:
		return false
	}
}
