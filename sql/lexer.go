package sql

import (
	"golang.org/x/text/cases"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokInt
	tokFloat
	tokPunct
)

type token struct {
	kind tokenKind
	text string // original-case text for idents; canonical for keywords/punct
	pos  int
}

// folder normalizes keyword and identifier text for case-insensitive
// comparison. Go's strings.ToUpper mishandles non-ASCII folding rules;
// cases.Fold applies full Unicode case folding, which still behaves
// correctly for this dialect's ASCII-only identifiers and additionally
// means a future non-ASCII identifier extension would not need a new
// folding pass.
var folder = cases.Fold()

func foldKeyword(s string) string {
	return folder.String(s)
}

var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "as": true,
	"update": true, "set": true, "and": true, "or": true, "not": true,
	"is": true, "null": true,
}

type lexer struct {
	src  []rune
	pos  int
	toks []token
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) tokenize() ([]token, error) {
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}

		start := l.pos
		c := l.src[l.pos]

		switch {
		case isIdentStart(c):
			l.pos++
			for l.pos < len(l.src) && isIdentContinue(l.src[l.pos]) {
				l.pos++
			}
			text := string(l.src[start:l.pos])
			if keywords[foldKeyword(text)] {
				l.toks = append(l.toks, token{kind: tokKeyword, text: foldKeyword(text), pos: start})
			} else {
				l.toks = append(l.toks, token{kind: tokIdent, text: text, pos: start})
			}

		case isDigit(c):
			l.pos++
			isFloat := false
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
			if l.pos < len(l.src) && l.src[l.pos] == '.' {
				isFloat = true
				l.pos++
				for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
					l.pos++
				}
			}
			kind := tokInt
			if isFloat {
				kind = tokFloat
			}
			l.toks = append(l.toks, token{kind: kind, text: string(l.src[start:l.pos]), pos: start})

		default:
			punct, width, err := l.scanPunct()
			if err != nil {
				return nil, err
			}
			l.toks = append(l.toks, token{kind: tokPunct, text: punct, pos: start})
			l.pos += width
		}
	}
}

func (l *lexer) scanPunct() (string, int, error) {
	c := l.src[l.pos]
	two := ""
	if l.pos+1 < len(l.src) {
		two = string(l.src[l.pos : l.pos+2])
	}
	switch two {
	case "<>", "<=", ">=":
		return two, 2, nil
	}
	switch c {
	case '(', ')', ',', '=', '<', '>', '+', '-', '*', '/':
		return string(c), 1, nil
	}
	return "", 0, &ParseError{Position: l.pos, Message: "unexpected character " + string(c)}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}

func normalizeIdent(s string) string {
	return foldKeyword(s)
}
