package binder

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Type names the setter a parameter is bound with.
type Type string

const (
	Int       Type = "Int"
	Long      Type = "Long"
	Short     Type = "Short"
	Float     Type = "Float"
	Double    Type = "Double"
	Decimal   Type = "BigDecimal"
	String    Type = "String"
	Boolean   Type = "Boolean"
	Date      Type = "Date"
	Time      Type = "Time"
	Timestamp Type = "Timestamp"
	Bytes     Type = "Bytes"
	Null      Type = "Null"
)

// Types lists every supported parameter type.
var Types = []Type{Int, Long, Short, Float, Double, Decimal, String, Boolean, Date, Time, Timestamp, Bytes, Null}

func (t Type) String() string { return string(t) }

// Index addresses a parameter either by 1-based position or by name.
// The zero value is an invalid position.
type Index struct {
	pos   int
	name  string
	named bool
}

// Pos returns a positional index.
func Pos(n int) Index { return Index{pos: n} }

// Name returns a named index matching the token ":name".
func Name(name string) Index { return Index{name: name, named: true} }

// IsNamed reports whether the index refers to a named token.
func (i Index) IsNamed() bool { return i.named }

// Valid reports whether the index is a non-empty name or a position of at
// least 1.
func (i Index) Valid() bool {
	if i.named {
		return i.name != ""
	}
	return i.pos >= 1
}

// Position is the 1-based position, or 0 for named indices.
func (i Index) Position() int { return i.pos }

// Name is the token name, or "" for positional indices.
func (i Index) Name() string { return i.name }

func (i Index) String() string {
	if i.IsNamed() {
		return ":" + i.name
	}
	return strconv.Itoa(i.pos)
}

// MarshalJSON encodes named indices as strings and positions as numbers.
func (i Index) MarshalJSON() ([]byte, error) {
	if i.IsNamed() {
		return json.Marshal(i.name)
	}
	return json.Marshal(i.pos)
}

// UnmarshalJSON accepts either a JSON string (name) or number (position).
func (i *Index) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*i = Name(name)
		return nil
	}
	var pos int
	if err := json.Unmarshal(data, &pos); err != nil {
		return fmt.Errorf("parameter index must be a name or a position: %s", data)
	}
	*i = Pos(pos)
	return nil
}

// Parameter is one value to bind into a prepared statement.
type Parameter struct {
	Index Index `json:"index"`
	Type  Type  `json:"type"`
	Value any   `json:"value"`
}

// Positional builds a parameter bound at 1-based position n.
func Positional(n int, typ Type, value any) Parameter {
	return Parameter{Index: Pos(n), Type: typ, Value: value}
}

// Named builds a parameter bound to the token ":name".
func Named(name string, typ Type, value any) Parameter {
	return Parameter{Index: Name(name), Type: typ, Value: value}
}
