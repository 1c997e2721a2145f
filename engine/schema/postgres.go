package schema

import (
	"context"
	"database/sql"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

const (
	pgTables = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

	pgColumns = `SELECT table_name, column_name, data_type FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

	pgForeignKeys = `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
ORDER BY kcu.table_name, kcu.column_name`
)

func describePostgres(ctx context.Context, db *sql.DB) (domain.Schema, error) {
	var tables []*domain.Table
	byName := make(map[string]*domain.Table)

	err := queryEach(ctx, db, pgTables, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		t := &domain.Table{Name: name, Columns: []domain.Column{}, ForeignKeys: []domain.ForeignKey{}}
		tables = append(tables, t)
		byName[name] = t
		return nil
	})
	if err != nil {
		return domain.Schema{}, err
	}

	err = queryEach(ctx, db, pgColumns, func(rows *sql.Rows) error {
		var table string
		var c domain.Column
		if err := rows.Scan(&table, &c.Name, &c.Type); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.Columns = append(t.Columns, c)
		}
		return nil
	})
	if err != nil {
		return domain.Schema{}, err
	}

	err = queryEach(ctx, db, pgForeignKeys, func(rows *sql.Rows) error {
		var table string
		var fk domain.ForeignKey
		if err := rows.Scan(&table, &fk.Column, &fk.ReferredTable, &fk.ReferredColumn); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		return nil
	})
	if err != nil {
		return domain.Schema{}, err
	}

	s := domain.Schema{Tables: make([]domain.Table, len(tables))}
	for i, t := range tables {
		s.Tables[i] = *t
	}
	return s, nil
}

func queryEach(ctx context.Context, db *sql.DB, query string, f func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := f(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
