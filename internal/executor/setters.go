package executor

import (
	"fmt"
	"math/big"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/spf13/cast"
)

// bindFunc applies one already coerced value to a prepared statement.
type bindFunc func(s driver.Setters, index int) error

// setter coerces a raw parameter value for one binder.Type.
type setter func(v any) (bindFunc, error)

// setters is the closed mapping from parameter type to bind operation.
var setters = map[binder.Type]setter{
	binder.Int:       typed(cast.ToInt32E, driver.Setters.SetInt),
	binder.Long:      typed(cast.ToInt64E, driver.Setters.SetLong),
	binder.Short:     typed(cast.ToInt16E, driver.Setters.SetShort),
	binder.Float:     typed(cast.ToFloat32E, driver.Setters.SetFloat),
	binder.Double:    typed(cast.ToFloat64E, driver.Setters.SetDouble),
	binder.Decimal:   typed(toDecimal, driver.Setters.SetDecimal),
	binder.String:    typed(cast.ToStringE, driver.Setters.SetString),
	binder.Boolean:   typed(cast.ToBoolE, driver.Setters.SetBoolean),
	binder.Date:      typed(cast.ToTimeE, driver.Setters.SetDate),
	binder.Time:      typed(cast.ToTimeE, driver.Setters.SetTime),
	binder.Timestamp: typed(cast.ToTimeE, driver.Setters.SetTimestamp),
	binder.Bytes:     typed(toBytes, driver.Setters.SetBytes),
	binder.Null:      null,
}

func typed[T any](conv func(any) (T, error), set func(driver.Setters, int, T) error) setter {
	return func(v any) (bindFunc, error) {
		if v == nil {
			return bindNull, nil
		}
		val, err := conv(v)
		if err != nil {
			return nil, err
		}
		return func(s driver.Setters, index int) error { return set(s, index, val) }, nil
	}
}

func null(any) (bindFunc, error) { return bindNull, nil }

func bindNull(s driver.Setters, index int) error { return s.SetNull(index) }

// toDecimal keeps decimals as their exact text form.
func toDecimal(v any) (string, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", err
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return "", fmt.Errorf("%q is not a decimal number", s)
	}
	return s, nil
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
}

// binding is one parameter ready to be applied.
type binding struct {
	index int
	bind  bindFunc
}

// resolve maps every parameter to its setter and coerces its value. It runs
// before any connection is reserved.
func resolve(params []binder.Parameter) ([]binding, error) {
	out := make([]binding, 0, len(params))
	for _, p := range params {
		set, ok := setters[p.Type]
		if !ok {
			return nil, errs.InvalidParameterType(string(p.Type))
		}
		bind, err := set(p.Value)
		if err != nil {
			e := errs.InvalidParameterType(string(p.Type))
			e.Message = fmt.Sprintf("invalid value for parameter %s of type %s", p.Index, p.Type)
			e.Cause = err
			return nil, e
		}
		out = append(out, binding{index: p.Index.Position(), bind: bind})
	}
	return out, nil
}

func apply(s driver.Setters, bindings []binding) error {
	for _, b := range bindings {
		if err := b.bind(s, b.index); err != nil {
			return err
		}
	}
	return nil
}
