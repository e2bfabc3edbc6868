package captcha

import (
	"fmt"
	"strconv"
	"strings"
)

// normalizeExpr maps the glyph variants the OCR emits for multiplication
// and division onto canonical operators and drops whitespace.
func normalizeExpr(text string) string {
	r := strings.NewReplacer(
		"x", "*",
		"X", "*",
		"×", "*",
		"÷", "/",
		" ", "",
	)
	return r.Replace(text)
}

// evalMath evaluates a two-operand arithmetic challenge. Division is
// integer division, matching what the portal expects as the answer.
func evalMath(text string) (int, error) {
	expr := normalizeExpr(text)
	if expr == "" {
		return 0, fmt.Errorf("empty expression")
	}

	// Scan past position 0 so a leading minus reads as a sign.
	opIdx := -1
	for i := 1; i < len(expr); i++ {
		switch expr[i] {
		case '+', '-', '*', '/':
			opIdx = i
		}
		if opIdx > 0 {
			break
		}
	}
	if opIdx <= 0 || opIdx == len(expr)-1 {
		return 0, fmt.Errorf("no operator in %q", text)
	}

	left, err := strconv.Atoi(expr[:opIdx])
	if err != nil {
		return 0, fmt.Errorf("left operand of %q: %w", text, err)
	}
	right, err := strconv.Atoi(expr[opIdx+1:])
	if err != nil {
		return 0, fmt.Errorf("right operand of %q: %w", text, err)
	}

	switch expr[opIdx] {
	case '+':
		return left + right, nil
	case '-':
		return left - right, nil
	case '*':
		return left * right, nil
	case '/':
		if right == 0 {
			return 0, fmt.Errorf("division by zero in %q", text)
		}
		return left / right, nil
	}
	return 0, fmt.Errorf("unsupported operator in %q", text)
}
