package schema

import "github.com/koustreak/sqlsession/internal/config"

// queries is one dialect's set of introspection statements. Every statement
// aliases its columns to lower case; MySQL reports information_schema
// columns in upper case otherwise.
type queries struct {
	listTables  string
	tableExists string
	columns     string
	foreignKeys string
}

var flavors = map[string]queries{
	config.DriverPostgres: postgresQueries,
	config.DriverPQ:       postgresQueries,
	config.DriverMySQL:    mysqlQueries,
	config.DriverSQLite:   sqliteQueries,
}

// information_schema identifiers are domain types; casting to text keeps
// every driver returning plain strings.
var postgresQueries = queries{
	listTables: `
		SELECT table_name::text AS table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`,

	tableExists: `
		SELECT 1 AS found
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
		  AND table_name = :table`,

	columns: `
		SELECT
			c.column_name::text                AS column_name,
			c.data_type::text                  AS data_type,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default::text             AS column_default,
			c.character_maximum_length::int    AS character_maximum_length,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			COALESCE(uq.is_unique, false)      AS is_unique
		FROM information_schema.columns c

		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
			  AND tc.table_name   = :table
		) pk ON pk.column_name = c.column_name

		LEFT JOIN (
			SELECT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
			  AND tc.table_name   = :table
		) uq ON uq.column_name = c.column_name

		WHERE c.table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
		  AND c.table_name = :table
		ORDER BY c.ordinal_position`,

	foreignKeys: `
		SELECT
			tc.constraint_name::text AS constraint_name,
			kcu.table_name::text     AS from_table,
			kcu.column_name::text    AS from_column,
			ccu.table_name::text     AS to_table,
			ccu.column_name::text    AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = COALESCE(NULLIF(:schema, ''), current_schema())
		ORDER BY tc.constraint_name`,
}

var mysqlQueries = queries{
	listTables: `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(:schema, ''), DATABASE())
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`,

	tableExists: `
		SELECT 1 AS found
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(:schema, ''), DATABASE())
		  AND table_name = :table`,

	columns: `
		SELECT
			c.column_name                  AS column_name,
			c.data_type                    AS data_type,
			c.is_nullable = 'YES'          AS is_nullable,
			c.column_default               AS column_default,
			c.character_maximum_length     AS character_maximum_length,
			(c.column_key = 'PRI')         AS is_primary_key,
			(c.column_key = 'UNI')         AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF(:schema, ''), DATABASE())
		  AND c.table_name   = :table
		ORDER BY c.ordinal_position`,

	foreignKeys: `
		SELECT
			rc.constraint_name             AS constraint_name,
			kcu.table_name                 AS from_table,
			kcu.column_name                AS from_column,
			kcu.referenced_table_name      AS to_table,
			kcu.referenced_column_name     AS to_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = COALESCE(NULLIF(:schema, ''), DATABASE())
		ORDER BY rc.constraint_name`,
}

// SQLite has a single schema per connection; the schema name is ignored.
var sqliteQueries = queries{
	listTables: `
		SELECT name AS table_name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`,

	tableExists: `
		SELECT 1 AS found
		FROM sqlite_master
		WHERE type = 'table' AND name = :table`,

	columns: `
		SELECT
			p.name                 AS column_name,
			p.type                 AS data_type,
			p."notnull" = 0        AS is_nullable,
			p.dflt_value           AS column_default,
			NULL                   AS character_maximum_length,
			p.pk > 0               AS is_primary_key,
			EXISTS (
				SELECT 1
				FROM pragma_index_list(:table) il
				JOIN pragma_index_info(il.name) ii
				WHERE il."unique" = 1 AND il.origin = 'u' AND ii.name = p.name
			)                      AS is_unique
		FROM pragma_table_info(:table) p
		ORDER BY p.cid`,

	foreignKeys: `
		SELECT
			'fk_' || m.name || '_' || f.id AS constraint_name,
			m.name                         AS from_table,
			f."from"                       AS from_column,
			f."table"                      AS to_table,
			f."to"                         AS to_column
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'
		ORDER BY m.name, f.id`,
}
