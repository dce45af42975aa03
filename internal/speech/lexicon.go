package speech

import (
	"strings"
	"unicode"
)

// Lexicon matches filler words and filler phrases on token boundaries.
type Lexicon struct {
	words     map[string]struct{}
	phrases   [][]string
	maxPhrase int
}

// NewLexicon builds a lexicon from entries such as "um" or "you know".
func NewLexicon(entries []string) *Lexicon {
	l := &Lexicon{words: make(map[string]struct{}), maxPhrase: 1}
	for _, e := range entries {
		toks := Tokenize(e)
		switch len(toks) {
		case 0:
			continue
		case 1:
			l.words[toks[0]] = struct{}{}
		default:
			l.phrases = append(l.phrases, toks)
			if len(toks) > l.maxPhrase {
				l.maxPhrase = len(toks)
			}
		}
	}
	return l
}

// Tokenize lowercases s and splits it into word tokens. Punctuation is a boundary; apostrophes
// inside a word are kept ("don't").
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// matches reports whether tok, preceded by the trailing tokens in prev, completes a filler.
func (l *Lexicon) matches(prev []string, tok string) bool {
	if _, ok := l.words[tok]; ok {
		return true
	}
	for _, p := range l.phrases {
		n := len(p)
		if p[n-1] != tok || len(prev) < n-1 {
			continue
		}
		tail := prev[len(prev)-(n-1):]
		match := true
		for i := 0; i < n-1; i++ {
			if tail[i] != p[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
