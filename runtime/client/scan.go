package client

import (
	"database/sql"

	"github.com/dashing-go/dashing/query"
)

// ScanRows reads every remaining row of rows as raw driver values and closes
// rows. Column order is preserved.
func ScanRows(rows *sql.Rows) ([]query.RawRow, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []query.RawRow
	for rows.Next() {
		values := make(query.RawRow, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		results = append(results, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
