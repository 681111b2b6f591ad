package query

import (
	"fmt"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// Parse parses the textual filter syntax used by the command line:
//
//	text:hello AND (number>=5 OR tags:[a, b]) AND NOT title:~draft
//
// "path:v" is equals, "path:~v" is like, "path:[a,b]" is in, "path!=v" is
// not_equals, "has:path" and a bare path are exists, and "!path" is
// exists false.
func Parse(input string) (Expr, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrQueryParse, "lex", err)
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrQueryParse, "parse", err)
	}
	if !p.match(TokEOF) {
		return nil, fserrors.QueryParseError(fmt.Sprintf("unexpected %v after expression", p.current().Kind))
	}
	return expr, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	items := []Expr{left}
	for p.match(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		items = append(items, right)
	}
	if len(items) == 1 {
		return left, nil
	}
	return Or{Exprs: items}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	items := []Expr{left}
	for p.match(TokAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		items = append(items, right)
	}
	if len(items) == 1 {
		return left, nil
	}
	return And{Exprs: items}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.match(TokNot) {
		p.advance()

		// Shorthand: !archived or NOT archived => archived does not exist.
		if p.match(TokIdent) && !isOperator(p.peek(1).Kind) {
			path := p.current().Value
			p.advance()
			return Cond{Path: path, Op: OpExists, Value: false}, nil
		}

		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.match(TokLParen) {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ')', got %v", p.current().Kind)
		}
		p.advance()
		return expr, nil
	}
	return p.parseCond()
}

func isOperator(k TokenKind) bool {
	switch k {
	case TokColon, TokGt, TokGte, TokLt, TokLte, TokNeq:
		return true
	}
	return false
}

func (p *parser) parseCond() (Expr, error) {
	var path string
	switch p.current().Kind {
	case TokIdent, TokString:
		path = p.current().Value
	case TokEOF:
		return nil, fmt.Errorf("unexpected end of query")
	default:
		return nil, fmt.Errorf("expected path, got %v", p.current().Kind)
	}
	p.advance()

	op := p.current().Kind
	if !isOperator(op) {
		return Cond{Path: path, Op: OpExists, Value: true}, nil
	}
	p.advance()

	switch op {
	case TokColon:
		if path == "has" {
			field, err := p.expectStringOrIdent()
			if err != nil {
				return nil, err
			}
			return Cond{Path: field, Op: OpExists, Value: true}, nil
		}
		if p.match(TokTilde) {
			p.advance()
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			s, ok := v.(string)
			if !ok {
				s = fmt.Sprint(v)
			}
			return Cond{Path: path, Op: OpLike, Value: s}, nil
		}
		if p.match(TokLBracket) {
			list, err := p.parseList()
			if err != nil {
				return nil, err
			}
			return Cond{Path: path, Op: OpIn, Value: list}, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Cond{Path: path, Op: OpEquals, Value: v}, nil

	case TokNeq:
		if p.match(TokLBracket) {
			list, err := p.parseList()
			if err != nil {
				return nil, err
			}
			return Cond{Path: path, Op: OpNotIn, Value: list}, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Cond{Path: path, Op: OpNotEquals, Value: v}, nil
	}

	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return Cond{Path: path, Op: comparisons[op], Value: v}, nil
}

var comparisons = map[TokenKind]Op{
	TokGt:  OpGreaterThan,
	TokGte: OpGreaterThanEqual,
	TokLt:  OpLessThan,
	TokLte: OpLessThanEqual,
}

// parseValue reads one literal. Bare true, false and null become their
// typed values; quoted strings are always text.
func (p *parser) parseValue() (any, error) {
	tok := p.current()
	switch tok.Kind {
	case TokNumber:
		p.advance()
		return tok.Num, nil
	case TokString:
		p.advance()
		return tok.Value, nil
	case TokIdent:
		p.advance()
		switch tok.Value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return tok.Value, nil
	}
	return nil, fmt.Errorf("expected value, got %v", tok.Kind)
}

func (p *parser) parseList() ([]any, error) {
	p.advance() // consume [
	out := []any{}
	if p.match(TokRBracket) {
		p.advance()
		return out, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch {
		case p.match(TokComma):
			p.advance()
		case p.match(TokRBracket):
			p.advance()
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']', got %v", p.current().Kind)
		}
	}
}

func (p *parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *parser) peek(offset int) Token {
	pos := p.pos + offset
	if pos < len(p.tokens) {
		return p.tokens[pos]
	}
	return Token{Kind: TokEOF}
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) match(kind TokenKind) bool {
	return p.current().Kind == kind
}

func (p *parser) expectStringOrIdent() (string, error) {
	if p.match(TokString) || p.match(TokIdent) {
		result := p.current().Value
		p.advance()
		return result, nil
	}
	return "", fmt.Errorf("expected string or identifier, got %v", p.current().Kind)
}
