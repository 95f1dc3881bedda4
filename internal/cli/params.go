package cli

import (
	"strconv"
	"strings"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/errs"
)

// parseParam parses "index:Type:value". index is a 1-based position or a
// name, Type is case-insensitive and the value may itself contain colons.
// Null parameters may omit the value.
func parseParam(s string) (binder.Parameter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return binder.Parameter{}, errs.Configuration("parameter must be index:Type:value, got %q", s)
	}

	typ, ok := lookupType(parts[1])
	if !ok {
		return binder.Parameter{}, errs.InvalidParameterType(parts[1])
	}

	var value any
	switch {
	case typ == binder.Null:
	case len(parts) == 3:
		value = parts[2]
	default:
		return binder.Parameter{}, errs.Configuration("parameter %q has no value", s)
	}

	if n, err := strconv.Atoi(parts[0]); err == nil {
		if n < 1 {
			return binder.Parameter{}, errs.InvalidParameterIndex(parts[0])
		}
		return binder.Positional(n, typ, value), nil
	}
	return binder.Named(strings.TrimPrefix(parts[0], ":"), typ, value), nil
}

func parseParams(raw []string) ([]binder.Parameter, error) {
	params := make([]binder.Parameter, 0, len(raw))
	for _, s := range raw {
		p, err := parseParam(s)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func lookupType(name string) (binder.Type, bool) {
	if strings.EqualFold(name, "Decimal") {
		return binder.Decimal, true
	}
	for _, t := range binder.Types {
		if strings.EqualFold(name, string(t)) {
			return t, true
		}
	}
	return "", false
}
