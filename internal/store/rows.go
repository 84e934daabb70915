package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stockroom/stockroom/pkg/types"
)

// Row is a single entity instance: attribute values keyed by attribute name.
// Absent (NULL) values are missing from the map.
type Row map[string]interface{}

// InsertRow inserts one instance of entity with the given attribute values
// and returns its generated pk.
func (s *Store) InsertRow(ctx context.Context, entity string, values Row) (int64, error) {
	e, ok := s.model.Entity(entity)
	if !ok {
		return 0, fmt.Errorf("store: unknown entity %q", entity)
	}

	var cols []string
	var args []interface{}
	for name, v := range values {
		if _, ok := e.Attribute(name); !ok {
			return 0, fmt.Errorf("store: entity %q has no attribute %q", entity, name)
		}
		cols = append(cols, name)
		args = append(args, v)
	}

	var query string
	if len(cols) == 0 {
		query = "INSERT INTO " + TableName(entity) + " DEFAULT VALUES"
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			TableName(entity),
			strings.Join(cols, ", "),
			strings.TrimRight(strings.Repeat("?, ", len(cols)), ", "))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: failed to insert %s row: %w", entity, err)
	}
	return res.LastInsertId()
}

// InsertRowWithPK inserts one instance with an explicit pk. Used when
// reconstructing a store with known identifiers.
func (s *Store) InsertRowWithPK(ctx context.Context, entity string, pk int64, values Row) error {
	e, ok := s.model.Entity(entity)
	if !ok {
		return fmt.Errorf("store: unknown entity %q", entity)
	}

	cols := []string{"pk"}
	args := []interface{}{pk}
	for name, v := range values {
		if _, ok := e.Attribute(name); !ok {
			return fmt.Errorf("store: entity %q has no attribute %q", entity, name)
		}
		cols = append(cols, name)
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName(entity),
		strings.Join(cols, ", "),
		strings.TrimRight(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: failed to insert %s row with pk %d: %w", entity, pk, err)
	}
	return nil
}

// CountRows returns the number of instances of entity.
func (s *Store) CountRows(ctx context.Context, entity string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+TableName(entity)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: failed to count %s rows: %w", entity, err)
	}
	return n, nil
}

// ReadRow reads a single instance by pk. The boolean reports existence.
func (s *Store) ReadRow(ctx context.Context, entity string, pk int64) (Row, bool, error) {
	e, ok := s.model.Entity(entity)
	if !ok {
		return nil, false, fmt.Errorf("store: unknown entity %q", entity)
	}

	cols := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		cols[i] = a.Name
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE pk = ?", strings.Join(cols, ", "), TableName(entity))

	dests := make([]interface{}, len(e.Attributes))
	for i := range dests {
		dests[i] = new(scanBox)
	}
	err := s.db.QueryRowContext(ctx, query, pk).Scan(dests...)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: failed to read %s row %d: %w", entity, pk, err)
	}

	row := Row{}
	for i, a := range e.Attributes {
		v := dests[i].(*scanBox).value(a.Type)
		if v != nil {
			row[a.Name] = v
		}
	}
	return row, true, nil
}

// ReadRows reads every instance of entity in pk order.
func (s *Store) ReadRows(ctx context.Context, entity string) (map[int64]Row, error) {
	e, ok := s.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("store: unknown entity %q", entity)
	}

	cols := []string{"pk"}
	for _, a := range e.Attributes {
		cols = append(cols, a.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY pk", strings.Join(cols, ", "), TableName(entity))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %s rows: %w", entity, err)
	}
	defer rows.Close()

	out := make(map[int64]Row)
	for rows.Next() {
		var pk int64
		dests := []interface{}{&pk}
		for range e.Attributes {
			dests = append(dests, new(scanBox))
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("store: failed to scan %s row: %w", entity, err)
		}
		row := Row{}
		for i, a := range e.Attributes {
			v := dests[i+1].(*scanBox).value(a.Type)
			if v != nil {
				row[a.Name] = v
			}
		}
		out[pk] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating %s rows: %w", entity, err)
	}
	return out, nil
}

// FindRow returns the pk of the first instance whose attribute equals value.
func (s *Store) FindRow(ctx context.Context, entity, attribute string, value interface{}) (int64, bool, error) {
	e, ok := s.model.Entity(entity)
	if !ok {
		return 0, false, fmt.Errorf("store: unknown entity %q", entity)
	}
	if _, ok := e.Attribute(attribute); !ok {
		return 0, false, fmt.Errorf("store: entity %q has no attribute %q", entity, attribute)
	}

	var pk int64
	query := fmt.Sprintf("SELECT pk FROM %s WHERE %s = ? ORDER BY pk LIMIT 1", TableName(entity), attribute)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&pk)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: failed to find %s row: %w", entity, err)
	}
	return pk, true, nil
}

// SetToOne points a to-one relationship of one instance at a target pk.
func (s *Store) SetToOne(ctx context.Context, entity, rel string, parentPK, targetPK int64) error {
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE pk = ?", TableName(entity), RefColumnName(rel))
	if _, err := s.db.ExecContext(ctx, query, targetPK, parentPK); err != nil {
		return fmt.Errorf("store: failed to set %s.%s: %w", entity, rel, err)
	}
	return nil
}

// ToOneTarget reads a to-one relationship target pk.
func (s *Store) ToOneTarget(ctx context.Context, entity, rel string, parentPK int64) (int64, bool, error) {
	var target sql.NullInt64
	query := fmt.Sprintf("SELECT %s FROM %s WHERE pk = ?", RefColumnName(rel), TableName(entity))
	err := s.db.QueryRowContext(ctx, query, parentPK).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: failed to read %s.%s: %w", entity, rel, err)
	}
	if !target.Valid {
		return 0, false, nil
	}
	return target.Int64, true, nil
}

// AppendToMany appends a target to a to-many relationship, assigning the next
// position so membership order is the insertion order.
func (s *Store) AppendToMany(ctx context.Context, entity, rel string, parentPK, targetPK int64) error {
	table := JoinTableName(entity, rel)
	query := fmt.Sprintf(
		"INSERT INTO %s (parent_pk, position, target_pk) SELECT ?, COALESCE(MAX(position), -1) + 1, ? FROM %s WHERE parent_pk = ?",
		table, table)
	if _, err := s.db.ExecContext(ctx, query, parentPK, targetPK, parentPK); err != nil {
		return fmt.Errorf("store: failed to append to %s.%s: %w", entity, rel, err)
	}
	return nil
}

// ToManyTargets returns a to-many relationship's target pks in membership
// order.
func (s *Store) ToManyTargets(ctx context.Context, entity, rel string, parentPK int64) ([]int64, error) {
	query := fmt.Sprintf("SELECT target_pk FROM %s WHERE parent_pk = ? ORDER BY position",
		JoinTableName(entity, rel))
	rows, err := s.db.QueryContext(ctx, query, parentPK)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %s.%s members: %w", entity, rel, err)
	}
	defer rows.Close()

	var targets []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("store: failed to scan %s.%s member: %w", entity, rel, err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// scanBox scans any SQLite value and converts it to the attribute's semantic
// Go type afterwards.
type scanBox struct {
	raw sql.NullString
	num sql.NullInt64
	flt sql.NullFloat64
	blb []byte
	set bool
}

func (b *scanBox) Scan(src interface{}) error {
	b.set = src != nil
	switch v := src.(type) {
	case nil:
	case int64:
		b.num = sql.NullInt64{Int64: v, Valid: true}
		b.flt = sql.NullFloat64{Float64: float64(v), Valid: true}
	case float64:
		b.flt = sql.NullFloat64{Float64: v, Valid: true}
		b.num = sql.NullInt64{Int64: int64(v), Valid: true}
	case string:
		b.raw = sql.NullString{String: v, Valid: true}
	case []byte:
		b.blb = append([]byte(nil), v...)
		b.raw = sql.NullString{String: string(v), Valid: true}
	default:
		return fmt.Errorf("store: unsupported scan type %T", src)
	}
	return nil
}

func (b *scanBox) value(t types.AttributeType) interface{} {
	if !b.set {
		return nil
	}
	switch t {
	case types.AttrString:
		return b.raw.String
	case types.AttrInt64, types.AttrDate:
		return b.num.Int64
	case types.AttrFloat64:
		return b.flt.Float64
	case types.AttrBool:
		return b.num.Int64 != 0
	case types.AttrBlob:
		return b.blb
	}
	return nil
}
