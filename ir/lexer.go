package ir

import (
	"unicode"

	"github.com/mirahmed753/cretonne/errors"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokName   // %name or %0
	tokNumber // decimal integer, optionally signed
	tokPunct  // ( ) { } , : =
	tokArrow  // ->
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokName:
		return "name"
	case tokNumber:
		return "number"
	case tokPunct:
		return "punctuation"
	case tokArrow:
		return "'->'"
	}
	return "unknown"
}

type token struct {
	Value string
	Type  tokenType
	Line  int
}

// tokenize splits IR text into tokens. Comments run from ';' to end of line.
func tokenize(input string) ([]token, error) {
	var tokens []token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == ';' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--
			continue
		}

		if r == '-' && i+1 < len(runes) && runes[i+1] == '>' {
			tokens = append(tokens, token{"->", tokArrow, line})
			i++
			continue
		}

		switch r {
		case '(', ')', '{', '}', ',', ':', '=':
			tokens = append(tokens, token{string(r), tokPunct, line})
			continue
		}

		if r == '%' {
			start := i + 1
			i++
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			if i == start {
				return nil, errors.Syntax(line, "empty name after '%%'")
			}
			tokens = append(tokens, token{string(runes[start:i]), tokName, line})
			i--
			continue
		}

		if r == '-' || unicode.IsDigit(r) {
			start := i
			i++
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			if r == '-' && i == start+1 {
				return nil, errors.Syntax(line, "stray '-'")
			}
			tokens = append(tokens, token{string(runes[start:i]), tokNumber, line})
			i--
			continue
		}

		if unicode.IsLetter(r) || r == '_' {
			start := i
			for i < len(runes) && (isIdentRune(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{string(runes[start:i]), tokIdent, line})
			i--
			continue
		}

		return nil, errors.Syntax(line, "unexpected character %q", r)
	}

	tokens = append(tokens, token{"", tokEOF, line})
	return tokens, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
