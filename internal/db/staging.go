package db

import (
	"context"
	"strings"
)

const stagingColumnCount = 5

// ClearStaging removes every staged row of a session and returns how many were removed
func (db *DB) ClearStaging(ctx context.Context, sessionID string) (int64, error) {
	result, err := db.exec(ctx, `DELETE FROM staging_catalog WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PutStaged writes external catalog rows for a session. A SKU staged twice keeps the later row.
func (db *DB) PutStaged(ctx context.Context, records []StagedRecord) error {
	if len(records) == 0 {
		return nil
	}

	// postgres refuses to touch the same conflict target twice in one statement
	records = lastPerSKU(records)

	return db.WithTransaction(ctx, func(tx *Tx) error {
		for start := 0; start < len(records); start += maxRowsPerInsert {
			end := min(start+maxRowsPerInsert, len(records))
			chunk := records[start:end]

			var b strings.Builder
			b.WriteString(`INSERT INTO staging_catalog (session_id, sku, product_name, available_stock, total_stock) VALUES `)
			args := make([]any, 0, len(chunk)*stagingColumnCount)
			row := placeholders(stagingColumnCount)
			for i, r := range chunk {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(row)
				args = append(args, r.SessionID, r.SKU, r.ProductName, r.AvailableStock, r.TotalStock)
			}
			b.WriteString(` ON CONFLICT (session_id, sku) DO UPDATE SET
				product_name = excluded.product_name,
				available_stock = excluded.available_stock,
				total_stock = excluded.total_stock`)

			if _, err := tx.exec(ctx, b.String(), args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// LookupStaged returns the staged rows of a session for skus, keyed by SKU
func (db *DB) LookupStaged(ctx context.Context, sessionID string, skus []string) (map[string]StagedRecord, error) {
	found := make(map[string]StagedRecord, len(skus))

	for start := 0; start < len(skus); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(skus))
		chunk := skus[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, sessionID)
		for _, sku := range chunk {
			args = append(args, sku)
		}

		query := `
			SELECT session_id, sku, product_name, available_stock, total_stock
			FROM staging_catalog
			WHERE session_id = ? AND sku IN ` + placeholders(len(chunk))

		rows, err := db.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r StagedRecord
			if err := rows.Scan(&r.SessionID, &r.SKU, &r.ProductName, &r.AvailableStock, &r.TotalStock); err != nil {
				rows.Close()
				return nil, err
			}
			found[r.SKU] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return found, nil
}

// CountStaged returns the number of staged rows held for a session
func (db *DB) CountStaged(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM staging_catalog WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

func lastPerSKU(records []StagedRecord) []StagedRecord {
	pos := make(map[string]int, len(records))
	out := make([]StagedRecord, 0, len(records))
	for _, r := range records {
		key := r.SessionID + "\x00" + r.SKU
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out
}
