// Package binder rewrites named SQL parameters (":name") into positional form.
//
// Usage:
//
//	bound, err := binder.Parse("SELECT * FROM t WHERE id = :id", []binder.Parameter{
//	    binder.Named("id", binder.Int, 42),
//	})
//	// bound.SQL    == "SELECT * FROM t WHERE id = ?"
//	// bound.Params == [{Index: 1, Type: Int, Value: 42}]
package binder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/sqlsession/internal/errs"
)

// tokenPattern matches ":identifier". Occurrences directly preceded by ':'
// are cast operators ("x::int") and are skipped by scan.
var tokenPattern = regexp.MustCompile(`:(\w+)`)

// Placeholder renders the positional placeholder for the n-th (1-based) slot.
type Placeholder func(n int) string

// QuestionMark emits "?" placeholders (JDBC, MySQL, SQLite, database/sql).
func QuestionMark(int) string { return "?" }

// Dollar emits "$1", "$2", … placeholders (PostgreSQL wire protocol).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Bound is the positional form of a statement and its parameters.
type Bound struct {
	SQL    string
	Params []Parameter
}

// Binder parses named parameters using a fixed placeholder style.
// It holds no mutable state and is safe for concurrent use.
type Binder struct {
	placeholder Placeholder
}

// New returns a Binder that emits placeholders with p. A nil p means QuestionMark.
func New(p Placeholder) *Binder {
	if p == nil {
		p = QuestionMark
	}
	return &Binder{placeholder: p}
}

var defaultBinder = New(QuestionMark)

// Parse binds params to sql using "?" placeholders.
func Parse(sql string, params []Parameter) (Bound, error) {
	return defaultBinder.Parse(sql, params)
}

type token struct {
	name       string
	start, end int
}

// Tokens returns the named tokens of sql in order of occurrence.
func Tokens(sql string) []string {
	toks := scan(sql)
	names := make([]string, len(toks))
	for i, t := range toks {
		names[i] = t.name
	}
	return names
}

func scan(sql string) []token {
	var toks []token
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(sql, -1) {
		if m[0] > 0 && sql[m[0]-1] == ':' {
			continue
		}
		toks = append(toks, token{name: sql[m[2]:m[3]], start: m[0], end: m[1]})
	}
	return toks
}

// Parse rewrites every named token in sql to a positional placeholder and
// returns the parameters reordered by token occurrence with indices 1..N.
//
// SQL without named tokens and a positional (or empty) parameter list is
// returned unchanged. The input slice is never modified.
func (b *Binder) Parse(sql string, params []Parameter) (Bound, error) {
	named, err := namedMode(params)
	if err != nil {
		return Bound{}, err
	}

	toks := scan(sql)
	if !named && len(toks) == 0 {
		return Bound{SQL: sql, Params: clone(params)}, nil
	}

	byName := make(map[string][]int, len(params))
	for i, p := range params {
		if p.Index.IsNamed() {
			byName[p.Index.Name()] = append(byName[p.Index.Name()], i)
		}
	}
	for _, p := range params {
		if name := p.Index.Name(); len(byName[name]) > 1 {
			return Bound{}, errs.DuplicateParameter(name)
		}
	}

	var sb strings.Builder
	sb.Grow(len(sql))
	bound := make([]Parameter, 0, len(toks))
	used := make(map[string]bool, len(byName))
	last := 0

	for i, tok := range toks {
		matches := byName[tok.name]
		if len(matches) == 0 {
			return Bound{}, errs.MissingParameter(tok.name)
		}

		p := params[matches[0]]
		p.Index = Pos(i + 1)
		bound = append(bound, p)
		used[tok.name] = true

		sb.WriteString(sql[last:tok.start])
		sb.WriteString(b.placeholder(i + 1))
		last = tok.end
	}
	sb.WriteString(sql[last:])

	for _, p := range params {
		if name := p.Index.Name(); !used[name] {
			return Bound{}, errs.UnusedParameter(name)
		}
	}

	return Bound{SQL: sb.String(), Params: bound}, nil
}

// namedMode reports whether params use named indices. A mixture of named
// and positional indices is an error, as is any invalid index.
func namedMode(params []Parameter) (bool, error) {
	n := 0
	for _, p := range params {
		if !p.Index.Valid() {
			return false, errs.InvalidParameterIndex(p.Index.String())
		}
		if p.Index.IsNamed() {
			n++
		}
	}
	if n == 0 {
		return false, nil
	}
	if n != len(params) {
		return false, errs.MixedParameterMode()
	}
	return true, nil
}

func clone(params []Parameter) []Parameter {
	if params == nil {
		return nil
	}
	out := make([]Parameter, len(params))
	copy(out, params)
	return out
}
