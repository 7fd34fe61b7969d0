package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// calculatorTool evaluates basic arithmetic. Input is whitelisted to digits,
// decimal points, parentheses and + - * /; anything else is rejected before
// parsing.
type calculatorTool struct{}

func (t *calculatorTool) Name() string { return string(KindCalculate) }

func (t *calculatorTool) Description() string {
	return "Evaluates an arithmetic expression limited to numbers, parentheses and + - * / operators."
}

func (t *calculatorTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "description": "Arithmetic expression to evaluate"}
		},
		"required": ["expression"],
		"additionalProperties": false
	}`)
}

func (t *calculatorTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult("invalid parameters: " + err.Error()), nil
	}
	expr := strings.TrimSpace(input.Expression)
	if expr == "" {
		return errorResult("expression is required"), nil
	}
	if bad := firstDisallowed(expr); bad != 0 {
		return errorResult(fmt.Sprintf("disallowed character %q in expression", bad)), nil
	}
	value, err := evaluate(expr)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &Result{Content: strconv.FormatFloat(value, 'f', -1, 64)}, nil
}

func firstDisallowed(expr string) rune {
	for _, r := range expr {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' || r == '-' || r == '*' || r == '/':
		case r == '(' || r == ')' || r == '.' || r == ' ':
		default:
			return r
		}
	}
	return 0
}

// evaluate runs a small recursive-descent parser over the whitelisted
// grammar: expr := term (('+'|'-') term)*, term := unary (('*'|'/') unary)*,
// unary := '-'* primary, primary := number | '(' expr ')'.
func evaluate(expr string) (float64, error) {
	p := &exprParser{input: strings.ReplaceAll(expr, " ", "")}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected input at position %d", p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	value, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}
