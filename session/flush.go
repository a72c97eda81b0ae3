package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/namwodah/depot/data"
	"github.com/namwodah/depot/registry"
)

// flush applies pending mutations in enqueue order against the open
// transaction. Callers hold u.mu.
func (u *UnitOfWork) flush(ctx context.Context) error {
	now := time.Now()

	for _, m := range u.pending {
		var err error
		switch m.kind {
		case mutationInsert:
			err = u.applyInsert(ctx, m.rec, now)
		case mutationUpdate:
			err = u.applyUpdate(ctx, m.rec, now)
		case mutationDelete:
			err = u.applyDelete(ctx, m.rec)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *UnitOfWork) applyInsert(ctx context.Context, rec *data.Record, now time.Time) error {
	def, err := u.reg.Lookup(rec.Entity())
	if err != nil {
		return err
	}

	pk := def.PrimaryKey().Name
	if pk == data.FieldID {
		rec.PrepareInsert(now)
	} else {
		if rec.Identity(pk) == nil {
			return fmt.Errorf("insert %s: no value for key %s", def.Name, pk)
		}
		rec.StampInsert(now)
	}

	fields := rec.Fields()
	columns := make([]string, 0, len(fields))
	placeholders := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, name := range fields {
		v, _ := rec.Get(name)
		columns = append(columns, name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, v)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		def.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
	_, err = u.exec(ctx, def.Name, stmt, args...)
	return err
}

func (u *UnitOfWork) applyUpdate(ctx context.Context, rec *data.Record, now time.Time) error {
	def, err := u.reg.Lookup(rec.Entity())
	if err != nil {
		return err
	}

	// Orphan rule: clearing a cascade-governed parent reference deletes
	// the child instead of leaving it dangling.
	for _, rel := range u.reg.ReferencesFrom(rec.Entity()) {
		if rel.OnDelete == registry.DeleteCascade && rec.IsCleared(rel.ForeignKey) {
			return u.applyDelete(ctx, rec)
		}
	}

	expected := rec.PrepareUpdate(now)
	pk := def.PrimaryKey().Name

	sets := make([]string, 0, len(rec.Fields()))
	args := make([]any, 0, len(rec.Fields())+2)
	for _, name := range rec.Fields() {
		if name == pk || name == data.FieldCreatedAt {
			continue
		}
		v, _ := rec.Get(name)
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)+1))
		args = append(args, v)
	}

	stmt := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d AND version = $%d",
		def.Table, strings.Join(sets, ", "), pk, len(args)+1, len(args)+2,
	)
	args = append(args, rec.Identity(pk), expected)

	affected, err := u.exec(ctx, def.Name, stmt, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &data.WriteConflictError{Entity: def.Name, ID: rec.Identity(pk), Version: expected}
	}
	return nil
}

func (u *UnitOfWork) applyDelete(ctx context.Context, rec *data.Record) error {
	def, err := u.reg.Lookup(rec.Entity())
	if err != nil {
		return err
	}

	walker := &deleteWalker{u: u, seen: map[string]bool{}}
	return walker.delete(ctx, def, rec.Identity(def.PrimaryKey().Name))
}

// deleteWalker removes a row and its dependents according to each
// relationship's declared policy, depth first so grandchildren go before
// their parents. The seen set guards against reference cycles.
type deleteWalker struct {
	u    *UnitOfWork
	seen map[string]bool
}

func (w *deleteWalker) delete(ctx context.Context, def *registry.Definition, id any) error {
	key := fmt.Sprintf("%s:%v", def.Name, id)
	if w.seen[key] {
		return nil
	}
	w.seen[key] = true

	for _, rel := range w.u.reg.ChildrenOf(def.Name) {
		childDef, err := w.u.reg.Lookup(rel.Child)
		if err != nil {
			return err
		}
		childPK := childDef.PrimaryKey().Name

		switch rel.OnDelete {
		case registry.DeleteRestrict:
			var exists bool
			exists, err = w.u.dependentExists(ctx, childDef, rel.ForeignKey, id)
			if err != nil {
				return err
			}
			if exists {
				return &data.ConstraintViolationError{
					Kind:       data.ConstraintForeignKey,
					Entity:     rel.Child,
					Field:      rel.ForeignKey,
					Constraint: rel.Name,
				}
			}

		case registry.DeleteCascade:
			var childIDs []any
			childIDs, err = w.u.dependentIDs(ctx, childDef, childPK, rel.ForeignKey, id)
			if err != nil {
				return err
			}
			for _, childID := range childIDs {
				if err = w.delete(ctx, childDef, childID); err != nil {
					return err
				}
			}

		case registry.DeleteSetNull:
			stmt := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1", childDef.Table, rel.ForeignKey, rel.ForeignKey)
			if _, err = w.u.exec(ctx, rel.Child, stmt, id); err != nil {
				return err
			}
		}
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", def.Table, def.PrimaryKey().Name)
	_, err := w.u.exec(ctx, def.Name, stmt, id)
	return err
}

func (u *UnitOfWork) dependentExists(ctx context.Context, child *registry.Definition, fk string, id any) (bool, error) {
	stmt := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1 LIMIT 1", child.Table, fk)

	begin := time.Now()
	rows, err := u.tx.Query(ctx, stmt, id)
	u.stmtLog.Observe(ctx, begin, stmt, 0, err)
	if err != nil {
		return false, data.MapError(child.Name, err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

func (u *UnitOfWork) dependentIDs(ctx context.Context, child *registry.Definition, pk, fk string, id any) ([]any, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", pk, child.Table, fk)

	begin := time.Now()
	rows, err := u.tx.Query(ctx, stmt, id)
	u.stmtLog.Observe(ctx, begin, stmt, 0, err)
	if err != nil {
		return nil, data.MapError(child.Name, err)
	}
	defer rows.Close()

	var ids []any
	for rows.Next() {
		var childID any
		if err = rows.Scan(&childID); err != nil {
			return nil, err
		}
		ids = append(ids, childID)
	}
	return ids, rows.Err()
}

func (u *UnitOfWork) exec(ctx context.Context, entity, stmt string, args ...any) (int64, error) {
	begin := time.Now()
	affected, err := u.tx.Exec(ctx, stmt, args...)
	u.stmtLog.Observe(ctx, begin, stmt, affected, err)
	if err != nil {
		return 0, data.MapError(entity, err)
	}
	return affected, nil
}
