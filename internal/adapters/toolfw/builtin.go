package toolfw

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/okapihq/okapi/internal/core/domain"
)

// CalculatorTool evaluates arithmetic expressions with + - * / and
// parentheses.
func CalculatorTool() (domain.ToolDefinition, Executor) {
	exprSchema := openapi3.NewStringSchema()
	exprSchema.Description = "arithmetic expression, e.g. (2+3)*4"
	schema := openapi3.NewObjectSchema().WithProperty("expr", exprSchema)
	schema.Required = []string{"expr"}

	def := domain.ToolDefinition{
		Name:        "calculator",
		Description: "Evaluates an arithmetic expression",
		Parameters:  schema,
	}

	exec := func(_ context.Context, params map[string]any) (any, error) {
		expr, _ := params["expr"].(string)
		value, err := evalExpr(expr)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", expr, err)
		}
		return map[string]any{"expression": expr, "value": value}, nil
	}

	return def, exec
}

// ClockTool reports the current time.
func ClockTool() (domain.ToolDefinition, Executor) {
	def := domain.ToolDefinition{
		Name:        "clock",
		Description: "Returns the current date and time",
		Parameters:  openapi3.NewObjectSchema(),
	}
	exec := func(_ context.Context, _ map[string]any) (any, error) {
		now := time.Now()
		return map[string]any{
			"rfc3339": now.Format(time.RFC3339),
			"unix":    now.Unix(),
		}, nil
	}
	return def, exec
}

// evalExpr is a small recursive-descent evaluator.
// expr   := term (('+'|'-') term)*
// term   := factor (('*'|'/') factor)*
// factor := number | '(' expr ')' | '-' factor
func evalExpr(input string) (float64, error) {
	p := &exprParser{src: strings.TrimSpace(input)}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return left, nil
		}
		switch p.src[p.pos] {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
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
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return left, nil
		}
		switch p.src[p.pos] {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseFactor()
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

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.src[p.pos] == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	if p.src[p.pos] == '-' {
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.src[start:p.pos], 64)
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}
