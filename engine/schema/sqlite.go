package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

const sqliteTables = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`

func describeSQLite(ctx context.Context, db *sql.DB) (domain.Schema, error) {
	var names []string
	err := queryEach(ctx, db, sqliteTables, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return domain.Schema{}, err
	}

	s := domain.Schema{Tables: make([]domain.Table, 0, len(names))}
	for _, name := range names {
		t := domain.Table{Name: name, Columns: []domain.Column{}, ForeignKeys: []domain.ForeignKey{}}

		err := queryEach(ctx, db, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(name)), func(rows *sql.Rows) error {
			var (
				cid, notNull, pk int
				col, typ         string
				dflt             sql.NullString
			)
			if err := rows.Scan(&cid, &col, &typ, &notNull, &dflt, &pk); err != nil {
				return err
			}
			t.Columns = append(t.Columns, domain.Column{Name: col, Type: typ})
			return nil
		})
		if err != nil {
			return domain.Schema{}, fmt.Errorf("table_info %s: %w", name, err)
		}

		err = queryEach(ctx, db, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(name)), func(rows *sql.Rows) error {
			var (
				id, seq                   int
				table, from               string
				to                        sql.NullString
				onUpdate, onDelete, match string
			)
			if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				return err
			}
			t.ForeignKeys = append(t.ForeignKeys, domain.ForeignKey{Column: from, ReferredTable: table, ReferredColumn: to.String})
			return nil
		})
		if err != nil {
			return domain.Schema{}, fmt.Errorf("foreign_key_list %s: %w", name, err)
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
