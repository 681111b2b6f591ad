package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Token represents a lexical token
type Token struct {
	Kind  TokenKind
	Value string
	Num   float64
}

// TokenKind is the type of token
type TokenKind int

const (
	TokIdent TokenKind = iota
	TokString
	TokNumber
	TokColon
	TokTilde
	TokAnd
	TokOr
	TokNot
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokComma
	TokGt
	TokGte
	TokLt
	TokLte
	TokNeq
	TokEOF
)

var tokenNames = map[TokenKind]string{
	TokIdent:    "Ident",
	TokString:   "String",
	TokNumber:   "Number",
	TokColon:    "Colon",
	TokTilde:    "Tilde",
	TokAnd:      "And",
	TokOr:       "Or",
	TokNot:      "Not",
	TokLParen:   "LParen",
	TokRParen:   "RParen",
	TokLBracket: "LBracket",
	TokRBracket: "RBracket",
	TokComma:    "Comma",
	TokGt:       "Gt",
	TokGte:      "Gte",
	TokLt:       "Lt",
	TokLte:      "Lte",
	TokNeq:      "Neq",
	TokEOF:      "EOF",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Lexer tokenizes a textual filter
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer creates a new lexer for the input string
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Lex tokenizes the entire input
func Lex(input string) ([]Token, error) {
	lexer := NewLexer(input)
	var tokens []Token

	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}

	return tokens, nil
}

var singles = map[rune]TokenKind{
	':': TokColon,
	'~': TokTilde,
	'(': TokLParen,
	')': TokRParen,
	'[': TokLBracket,
	']': TokRBracket,
	',': TokComma,
	'&': TokAnd,
	'|': TokOr,
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF}, nil
	}

	ch := l.input[l.pos]
	if kind, ok := singles[ch]; ok {
		l.pos++
		return Token{Kind: kind}, nil
	}

	switch ch {
	case '!':
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokNeq}, nil
		}
		l.pos++
		return Token{Kind: TokNot}, nil
	case '>':
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokGte}, nil
		}
		l.pos++
		return Token{Kind: TokGt}, nil
	case '<':
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokLte}, nil
		}
		l.pos++
		return Token{Kind: TokLt}, nil
	case '"':
		return l.scanString()
	}

	if isWordStart(ch) || (ch == '-' && unicode.IsDigit(l.peek(1))) {
		return l.scanWord()
	}

	return Token{}, fmt.Errorf("unexpected character: %c", ch)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos < len(l.input) {
		return l.input[pos]
	}
	return 0
}

func (l *Lexer) scanString() (Token, error) {
	l.pos++ // consume opening quote
	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '"' {
			l.pos++
			return Token{Kind: TokString, Value: sb.String()}, nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			switch l.input[l.pos] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			default:
				sb.WriteRune(l.input[l.pos])
			}
			l.pos++
			continue
		}
		sb.WriteRune(ch)
		l.pos++
	}

	return Token{}, fmt.Errorf("unterminated string")
}

// scanWord reads a bare word. Words that parse as numbers become number
// tokens, so dates such as 2024-01-01 stay identifiers.
func (l *Lexer) scanWord() (Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
		l.pos++
	}
	value := string(l.input[start:l.pos])

	if first := l.input[start]; unicode.IsDigit(first) || first == '-' {
		if num, err := strconv.ParseFloat(value, 64); err == nil {
			return Token{Kind: TokNumber, Value: value, Num: num}, nil
		}
	}

	switch strings.ToUpper(value) {
	case "AND":
		return Token{Kind: TokAnd}, nil
	case "OR":
		return Token{Kind: TokOr}, nil
	case "NOT":
		return Token{Kind: TokNot}, nil
	}

	return Token{Kind: TokIdent, Value: value}, nil
}

func isWordStart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func isWordChar(ch rune) bool {
	return isWordStart(ch) || ch == '-' || ch == '.' || ch == '#' || ch == '/' || ch == '+' || ch == '%' || ch == '@'
}
