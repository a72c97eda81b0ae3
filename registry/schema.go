package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/pool"
)

// MaterializeSchema creates any missing tables and indexes for the
// registered definitions. It is idempotent and strictly additive: an
// existing table is never altered or dropped, even when its live shape
// disagrees with the registry. Reconciling columns is the separate,
// operator-invoked ReconcileSchema.
func (r *Registry) MaterializeSchema(ctx context.Context, db pool.Querier) error {
	log := util.Log(ctx)

	for _, def := range r.Definitions() {
		if _, err := db.Exec(ctx, r.createTableSQL(def)); err != nil {
			return fmt.Errorf("materialize table %s: %w", def.Table, err)
		}

		for _, f := range def.Fields {
			if !f.Indexed || f.PrimaryKey {
				continue
			}
			stmt := fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
				def.Table, f.Name, def.Table, f.Name,
			)
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("materialize index on %s.%s: %w", def.Table, f.Name, err)
			}
		}

		log.WithField("table", def.Table).Debug("materialized table")
	}
	return nil
}

// ReconcileSchema inspects existing tables and adds declared columns the
// live schema is missing. Columns are only ever added; nothing is
// retyped, renamed or dropped. Tables absent from the live schema are
// skipped, they belong to MaterializeSchema.
func (r *Registry) ReconcileSchema(ctx context.Context, db pool.Querier) error {
	log := util.Log(ctx)

	for _, def := range r.Definitions() {
		exists, err := tableExists(ctx, db, def.Table)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", def.Table, err)
		}
		if !exists {
			continue
		}

		liveColumns, err := tableColumns(ctx, db, def.Table)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", def.Table, err)
		}

		for _, f := range def.Fields {
			if liveColumns[f.Name] {
				continue
			}

			stmt := fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s",
				def.Table, addColumnSQL(f),
			)
			if _, err = db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("reconcile %s.%s: %w", def.Table, f.Name, err)
			}

			log.WithField("table", def.Table).
				WithField("column", f.Name).
				Info("added missing column")
		}
	}
	return nil
}

func (r *Registry) createTableSQL(def *Definition) string {
	clauses := make([]string, 0, len(def.Fields)+2)
	for _, f := range def.Fields {
		clauses = append(clauses, columnSQL(f))
	}

	for _, rel := range r.ReferencesFrom(def.Name) {
		parent, err := r.Lookup(rel.Parent)
		if err != nil {
			continue
		}
		clauses = append(clauses, fmt.Sprintf(
			"CONSTRAINT %s_%s_fkey FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
			def.Table, rel.ForeignKey, rel.ForeignKey,
			parent.Table, parent.PrimaryKey().Name, rel.OnDelete,
		))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", def.Table, strings.Join(clauses, ", "))
}

func columnSQL(f Field) string {
	parts := []string{f.Name, typeSQL(f)}
	if f.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if !f.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if f.Default != "" {
		parts = append(parts, "DEFAULT "+f.Default)
	}
	if f.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

// addColumnSQL renders a column for ALTER TABLE. NOT NULL is dropped
// when there is no default, existing rows could never satisfy it.
func addColumnSQL(f Field) string {
	parts := []string{f.Name, typeSQL(f)}
	if !f.Nullable && f.Default != "" {
		parts = append(parts, "NOT NULL")
	}
	if f.Default != "" {
		parts = append(parts, "DEFAULT "+f.Default)
	}
	if f.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

func typeSQL(f Field) string {
	switch f.Type {
	case FieldString:
		size := f.Size
		if size <= 0 {
			size = defaultStringSize
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case FieldText:
		return "TEXT"
	case FieldInt:
		return "INTEGER"
	case FieldBigInt:
		return "BIGINT"
	case FieldFloat:
		return "DOUBLE PRECISION"
	case FieldBool:
		return "BOOLEAN"
	case FieldTime:
		return "TIMESTAMPTZ"
	case FieldDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func tableExists(ctx context.Context, db pool.Querier, table string) (bool, error) {
	rows, err := db.Query(ctx,
		"SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
		table,
	)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

func tableColumns(ctx context.Context, db pool.Querier, table string) (map[string]bool, error) {
	rows, err := db.Query(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1",
		table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
