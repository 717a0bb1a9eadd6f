package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Node is one vertex of the expression AST.
type Node interface {
	node()
}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

// VariableRef names a catalog variable.
type VariableRef struct {
	Name string
}

// UnaryOp is a prefix operator application (negation).
type UnaryOp struct {
	Op      string
	Operand Node
}

// BinaryOp is an infix operator application.
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

// Call is a grammar function application.
type Call struct {
	Func string
	Args []Node
}

func (*Literal) node()     {}
func (*VariableRef) node() {}
func (*UnaryOp) node()     {}
func (*BinaryOp) node()    {}
func (*Call) node()        {}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenOp
	tokenLParen
	tokenRParen
	tokenComma
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := rune(input[i])

		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++

		case c == ',':
			tokens = append(tokens, token{kind: tokenComma, text: ",", pos: i})
			i++

		case c == '+' || c == '-' || c == '*' || c == '@':
			tokens = append(tokens, token{kind: tokenOp, text: string(c), pos: i})
			i++

		case c == '=' || c == '<' || c == '>':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, fmt.Errorf("%w: unexpected '%c' at position %d", ErrSyntax, c, i)
			}
			tokens = append(tokens, token{kind: tokenOp, text: input[i : i+2], pos: i})
			i += 2

		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(input) && (unicode.IsDigit(rune(input[i])) || input[i] == '.') {
				i++
			}
			text := input[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("%w: malformed number '%s' at position %d", ErrSyntax, text, start)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: start})

		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(input) {
				r := rune(input[i])
				if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
					break
				}
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[start:i], pos: start})

		default:
			return nil, fmt.Errorf("%w: unexpected '%c' at position %d", ErrSyntax, c, i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, text: "", pos: len(input)})

	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
	input  string
}

// Parse builds the AST of a symbolic expression.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, input: input}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected '%s' at position %d", ErrSyntax, p.peek().text, p.peek().pos)
	}

	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}

	return t
}

// parseComparison handles the lowest precedence tier: a single, non-chainable
// comparison between additive expressions.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t.kind == tokenOp && (t.text == "==" || t.text == "<=" || t.text == ">=") {
		p.next()
		right, rErr := p.parseAdditive()
		if rErr != nil {
			return nil, rErr
		}

		return &BinaryOp{Op: t.text, Left: left, Right: right}, nil
	}

	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.kind != tokenOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()

		right, rErr := p.parseMultiplicative()
		if rErr != nil {
			return nil, rErr
		}
		left = &BinaryOp{Op: t.text, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.kind != tokenOp || (t.text != "*" && t.text != "@") {
			return left, nil
		}
		p.next()

		right, rErr := p.parseUnary()
		if rErr != nil {
			return nil, rErr
		}
		left = &BinaryOp{Op: t.text, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	if t.kind == tokenOp && t.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &UnaryOp{Op: "-", Operand: operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()

	switch t.kind {
	case tokenNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed number '%s'", ErrSyntax, t.text)
		}
		return &Literal{Value: v}, nil

	case tokenIdent:
		if p.peek().kind == tokenLParen {
			return p.parseCall(t)
		}
		return &VariableRef{Name: t.text}, nil

	case tokenLParen:
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, fmt.Errorf("%w: expected ')' at position %d", ErrSyntax, closing.pos)
		}
		return inner, nil

	case tokenOp, tokenRParen, tokenComma, tokenEOF:
		return nil, fmt.Errorf("%w: unexpected '%s' at position %d", ErrSyntax, t.text, t.pos)

	default:
		return nil, fmt.Errorf("%w: unexpected token at position %d", ErrSyntax, t.pos)
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	if !isGrammarFunction(name.text) {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownFunction, name.text)
	}

	// consume '('
	p.next()

	call := &Call{Func: name.text}

	if p.peek().kind == tokenRParen {
		p.next()
		return call, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		t := p.next()
		switch t.kind {
		case tokenComma:
			continue
		case tokenRParen:
			return call, nil
		case tokenIdent, tokenNumber, tokenOp, tokenLParen, tokenEOF:
			return nil, fmt.Errorf("%w: expected ',' or ')' at position %d", ErrSyntax, t.pos)
		}
	}
}

func isGrammarFunction(name string) bool {
	for _, f := range ReservedTokens() {
		if f == name {
			return true
		}
	}

	return false
}
