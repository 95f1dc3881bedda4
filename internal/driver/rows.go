package driver

// Scanner is the cursor shape shared by database/sql and pgx result sets.
type Scanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanRows reads all remaining rows from cur into maps keyed by column name.
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows does not close cur.
func ScanRows(cur Scanner, columns []string) ([]Row, error) {
	result := make([]Row, 0)

	for cur.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := cur.Scan(destPtrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				// database/sql reuses the buffer on the next Scan.
				dest[i] = append([]byte(nil), b...)
			}
			row[col] = dest[i]
		}
		result = append(result, row)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
