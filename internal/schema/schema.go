// Package schema introspects tables and columns through a session.
//
// Queries are written once with named parameters and bound to the
// placeholder style of whichever driver the session uses. An empty schema
// name means the connection's current schema (database on MySQL).
package schema

import (
	"context"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/spf13/cast"
)

// Querier runs prepared reads. *session.Session satisfies it.
type Querier interface {
	ReadPrepared(ctx context.Context, sql string, params []binder.Parameter) ([]driver.Row, error)
}

// Reader is the interface for introspecting a database schema
type Reader interface {
	// ListTables returns all user tables in the given schema
	ListTables(ctx context.Context, schema string) ([]string, error)

	// TableExists checks whether a table exists
	TableExists(ctx context.Context, schema, table string) (bool, error)

	// InspectTable returns full column info for a table
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)

	// InspectSchema returns the full schema (all tables + foreign keys)
	InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error)
}

// Introspector implements Reader on top of a Querier.
type Introspector struct {
	q       Querier
	queries queries
}

var _ Reader = (*Introspector)(nil)

// New returns an introspector for the named driver.
func New(q Querier, driverName string) (*Introspector, error) {
	qs, ok := flavors[driverName]
	if !ok {
		return nil, errs.Configuration("schema introspection is not supported for driver %q", driverName)
	}
	return &Introspector{q: q, queries: qs}, nil
}

// ListTables returns all user-defined table names in the given schema
func (i *Introspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := i.read(ctx, i.queries.listTables, map[string]string{"schema": schema})
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, cast.ToString(row["table_name"]))
	}
	return tables, nil
}

// TableExists checks whether a specific table exists
func (i *Introspector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	rows, err := i.read(ctx, i.queries.tableExists, map[string]string{"schema": schema, "table": table})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InspectTable returns column details for a single table
func (i *Introspector) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	rows, err := i.read(ctx, i.queries.columns, map[string]string{"schema": schema, "table": table})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &errs.Error{Kind: errs.ErrKindQueryExecution, Message: "table not found or has no columns: " + table, Name: table}
	}

	info := &TableInfo{Schema: schema, Name: table, Columns: make([]ColumnInfo, 0, len(rows))}
	for _, row := range rows {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:         cast.ToString(row["column_name"]),
			DataType:     cast.ToString(row["data_type"]),
			IsNullable:   cast.ToBool(row["is_nullable"]),
			IsPrimaryKey: cast.ToBool(row["is_primary_key"]),
			IsUnique:     cast.ToBool(row["is_unique"]),
			DefaultValue: optionalString(row["column_default"]),
			MaxLength:    optionalInt(row["character_maximum_length"]),
		})
	}
	return info, nil
}

// InspectSchema returns all tables and foreign keys in the schema
func (i *Introspector) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{Tables: make([]TableInfo, 0, len(tables))}
	for _, table := range tables {
		ti, err := i.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := i.listForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks

	return info, nil
}

func (i *Introspector) listForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error) {
	rows, err := i.read(ctx, i.queries.foreignKeys, map[string]string{"schema": schema})
	if err != nil {
		return nil, err
	}

	fks := make([]ForeignKey, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, ForeignKey{
			Name:       cast.ToString(row["constraint_name"]),
			FromTable:  cast.ToString(row["from_table"]),
			FromColumn: cast.ToString(row["from_column"]),
			ToTable:    cast.ToString(row["to_table"]),
			ToColumn:   cast.ToString(row["to_column"]),
		})
	}
	return fks, nil
}

// read binds only the values whose names appear in sql, so one value set
// serves queries that ignore the schema.
func (i *Introspector) read(ctx context.Context, sql string, values map[string]string) ([]driver.Row, error) {
	var params []binder.Parameter
	seen := make(map[string]bool, len(values))
	for _, name := range binder.Tokens(sql) {
		v, ok := values[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		params = append(params, binder.Named(name, binder.String, v))
	}
	return i.q.ReadPrepared(ctx, sql, params)
}

func optionalString(v any) *string {
	if v == nil {
		return nil
	}
	s := cast.ToString(v)
	return &s
}

func optionalInt(v any) *int {
	if v == nil {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return nil
	}
	return &n
}
