package sheets

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrBadExpr = errors.New("sheets: invalid filter expression")

// Predicate reports whether a cell value matches.
type Predicate func(value string) bool

var condRe = regexp.MustCompile(`^(==|!=|>=|<=|=|>|<)\s*(.*)$`)

// ParseExpr compiles a filter such as ">0 && <100" or `="Wow" || >10`.
// && binds tighter than ||; there are no parentheses. A term without an
// operator is an equality test and an empty expression matches everything.
func ParseExpr(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return func(string) bool { return true }, nil
	}
	var groups [][]Predicate
	for _, or := range strings.Split(expr, "||") {
		var group []Predicate
		for _, term := range strings.Split(or, "&&") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			p, err := parseTerm(term)
			if err != nil {
				return nil, err
			}
			group = append(group, p)
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadExpr, expr)
	}
	return func(v string) bool {
		for _, g := range groups {
			ok := true
			for _, p := range g {
				if !p(v) {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
		}
		return false
	}, nil
}

func parseTerm(term string) (Predicate, error) {
	op, rhs := "==", term
	if m := condRe.FindStringSubmatch(term); m != nil {
		op, rhs = m[1], strings.TrimSpace(m[2])
		if op == "=" {
			op = "=="
		}
		if rhs == "" {
			return nil, fmt.Errorf("%w: missing operand in %q", ErrBadExpr, term)
		}
	}
	quoted := isQuoted(rhs)
	if quoted {
		rhs = rhs[1 : len(rhs)-1]
	}
	rn, rnum := ParseNumber(rhs)
	return func(v string) bool {
		if !quoted && rnum {
			if ln, ok := ParseNumber(v); ok {
				return compare(ln.Cmp(rn), op)
			}
		}
		return compare(strings.Compare(v, rhs), op)
	}, nil
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'')
}

func compare(c int, op string) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	}
	return false
}

var numRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// ParseNumber reads BR ("1.234,56") and US ("1,234.56") formatted numbers.
// When only one separator kind is present, a comma is decimal and dots are
// thousands separators unless a single dot is followed by other than three
// digits ("10.5").
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && (strings.Count(s, ".") > 1 || len(s)-dot-1 == 3):
		s = strings.ReplaceAll(s, ".", "")
	}
	if !numRe.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
