package driver

import (
	"fmt"
	"time"
)

// Args implements Setters by collecting positional arguments.
// Drivers whose native API takes an argument slice embed it.
type Args struct {
	values []any
}

// Values returns the collected arguments in position order.
func (a *Args) Values() []any {
	return a.values
}

func (a *Args) set(index int, v any) error {
	if index < 1 {
		return fmt.Errorf("parameter index must be 1-based, got %d", index)
	}
	for len(a.values) < index {
		a.values = append(a.values, nil)
	}
	a.values[index-1] = v
	return nil
}

func (a *Args) SetInt(index int, v int32) error           { return a.set(index, v) }
func (a *Args) SetLong(index int, v int64) error          { return a.set(index, v) }
func (a *Args) SetShort(index int, v int16) error         { return a.set(index, v) }
func (a *Args) SetFloat(index int, v float32) error       { return a.set(index, v) }
func (a *Args) SetDouble(index int, v float64) error      { return a.set(index, v) }
func (a *Args) SetDecimal(index int, v string) error      { return a.set(index, v) }
func (a *Args) SetString(index int, v string) error       { return a.set(index, v) }
func (a *Args) SetBoolean(index int, v bool) error        { return a.set(index, v) }
func (a *Args) SetDate(index int, v time.Time) error      { return a.set(index, v) }
func (a *Args) SetTime(index int, v time.Time) error      { return a.set(index, v) }
func (a *Args) SetTimestamp(index int, v time.Time) error { return a.set(index, v) }
func (a *Args) SetBytes(index int, v []byte) error        { return a.set(index, v) }
func (a *Args) SetNull(index int) error                   { return a.set(index, nil) }
