package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// System implements the current_time and calculate tools.
type System struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewSystem creates the system tool set.
func NewSystem() *System {
	return &System{now: time.Now}
}

// TimeInput is the input for current_time.
type TimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA timezone name, e.g. 'Asia/Tokyo' (default UTC)"`
}

// CalculateInput is the input for calculate.
type CalculateInput struct {
	Expression string `json:"expression" jsonschema_description:"Arithmetic expression to evaluate, e.g. '(22 - 14) * 1.8 + 32'"`
}

// CurrentTime reports the current time, optionally in a timezone.
func (s *System) CurrentTime(_ context.Context, in TimeInput) Result {
	loc := time.UTC
	tz := strings.TrimSpace(in.Timezone)
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Errorf(ErrCodeValidation, "unknown timezone: %s", tz)
		}
	}

	now := s.now().In(loc)
	return Success(
		fmt.Sprintf("Current time in %s", loc.String()),
		map[string]any{
			"timezone": loc.String(),
			"time":     now.Format(time.RFC3339),
			"readable": now.Format("Monday, January 2, 2006 at 3:04 PM"),
			"weekday":  now.Weekday().String(),
		},
	)
}

// Calculate evaluates a basic arithmetic expression. Supported: + - * /
// and parentheses over decimal numbers.
func (s *System) Calculate(_ context.Context, in CalculateInput) Result {
	expr := strings.TrimSpace(in.Expression)
	if expr == "" {
		return Errorf(ErrCodeValidation, "expression is required")
	}

	value, err := evalExpression(expr)
	if err != nil {
		return Errorf(ErrCodeValidation, "cannot evaluate %q: %v", expr, err)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return Errorf(ErrCodeExecution, "expression result is not a finite number")
	}

	return Success(
		fmt.Sprintf("%s = %s", expr, formatNumber(value)),
		map[string]any{
			"expression": expr,
			"result":     value,
		},
	)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// evalExpression is a recursive descent parser for arithmetic.
//
// Grammar:
//
//	expr   = term   { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = number | "-" factor | "(" expr ")"
func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			value += rhs
		} else {
			value -= rhs
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			value *= rhs
		} else {
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= rhs
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	switch {
	case c == '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	case c == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if c, ok := p.peek(); !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case unicode.IsDigit(rune(c)) || c == '.':
		start := p.pos
		for p.pos < len(p.input) {
			ch := p.input[p.pos]
			if !unicode.IsDigit(rune(ch)) && ch != '.' {
				break
			}
			p.pos++
		}
		value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
		}
		return value, nil
	default:
		return 0, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
	}
}
