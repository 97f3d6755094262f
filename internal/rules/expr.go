package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalArithmetic evaluates a whitelisted arithmetic expression such as
// "vwap - 1.5 * atr". The grammar is deliberately tiny: numbers, identifiers
// resolved through lookup, + - * /, and parentheses. There are no function
// calls, no attribute access, and no fallback to any general-purpose
// evaluator; anything outside the grammar is an error.
func evalArithmetic(expr string, lookup func(string) (float64, bool)) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	p := &exprParser{tokens: tokens, lookup: lookup}
	val, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("unexpected token %q", p.tokens[p.pos])
	}
	return val, nil
}

// containsArithmetic reports whether a string operand looks like an
// expression rather than a bare field reference.
func containsArithmetic(s string) bool {
	return strings.ContainsAny(s, "+-*/")
}

func tokenize(expr string) ([]string, error) {
	var tokens []string
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("illegal character %q in expression", r)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

type exprParser struct {
	tokens []string
	pos    int
	lookup func(string) (float64, bool)
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case "+":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case "-":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case "*":
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case "/":
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == "-" {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	tok := p.peek()
	if tok == "" {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if tok == "(" {
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	}
	p.pos++
	if unicode.IsDigit(rune(tok[0])) || tok[0] == '.' {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("bad number %q", tok)
		}
		return f, nil
	}
	val, ok := p.lookup(tok)
	if !ok {
		return 0, fmt.Errorf("unknown identifier %q", tok)
	}
	return val, nil
}
