package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/mapping"
	"github.com/stockroom/stockroom/internal/store"
	"github.com/stockroom/stockroom/pkg/types"
)

// applyStep rewrites the store at srcPath into a fresh store conforming to
// the destination model, following a completed mapping. The destination is a
// uuid-named temp file in the source's directory so the final swap is a
// same-filesystem rename. The source is attached read-only and never written.
//
// The copy runs in one transaction: an entity pass first (pk values carried
// over verbatim), then a relationship pass over the join tables. Preserved
// pks are what keep relationship rows valid across entity renames.
func applyStep(ctx context.Context, srcPath string, m *mapping.Mapping, from, to types.Model) (string, error) {
	tmpPath := filepath.Join(filepath.Dir(srcPath), ".step-"+uuid.NewString()+".db")

	dst, err := store.Create(tmpPath, to)
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := copyInto(ctx, dst, srcPath, m, from, to); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close step output: %w", err)
	}
	return tmpPath, nil
}

func copyInto(ctx context.Context, dst *store.Store, srcPath string, m *mapping.Mapping, from, to types.Model) error {
	db := dst.DB()

	// ATTACH is not allowed inside a transaction; the single-connection pool
	// keeps it visible to the transaction below.
	if _, err := db.ExecContext(ctx, "ATTACH DATABASE ? AS src", "file:"+srcPath+"?mode=ro"); err != nil {
		return fmt.Errorf("failed to attach source store: %w", err)
	}
	defer db.Exec("DETACH DATABASE src")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin step transaction: %w", err)
	}
	defer tx.Rollback()

	// Entity pass: one INSERT ... SELECT per populated destination entity.
	for _, rule := range m.Entities {
		if rule.Source == "" {
			continue // destination entity starts empty
		}
		stmt, err := entityCopySQL(rule, from, to)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to copy entity %s: %w", rule.Destination, err)
		}
	}

	// Relationship pass: join tables reference pks of both sides, so every
	// entity must already be in place.
	for _, rule := range m.Entities {
		if rule.Source == "" {
			continue
		}
		stmts, err := relationshipCopySQL(rule, from, to)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to copy relationships of %s: %w", rule.Destination, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step transaction: %w", err)
	}
	return nil
}

// entityCopySQL builds the INSERT ... SELECT moving one entity's instances.
func entityCopySQL(rule mapping.EntityRule, from, to types.Model) (string, error) {
	dstEntity, ok := to.Entity(rule.Destination)
	if !ok {
		return "", fmt.Errorf("mapping names unknown destination entity %q", rule.Destination)
	}
	srcEntity, ok := from.Entity(rule.Source)
	if !ok {
		return "", fmt.Errorf("mapping names unknown source entity %q", rule.Source)
	}

	cols := []string{"pk"}
	exprs := []string{"pk"}

	for _, ar := range rule.Attributes {
		attr, ok := dstEntity.Attribute(ar.Destination)
		if !ok {
			return "", fmt.Errorf("entity %q has no attribute %q", rule.Destination, ar.Destination)
		}
		cols = append(cols, attr.Name)
		switch {
		case ar.Source != "":
			exprs = append(exprs, ar.Source)
		case attr.Optional:
			exprs = append(exprs, "NULL")
		default:
			exprs = append(exprs, defaultLiteral(attr.Type))
		}
	}

	for _, rr := range rule.Relationships {
		rel, ok := dstEntity.Relationship(rr.Destination)
		if !ok {
			return "", fmt.Errorf("entity %q has no relationship %q", rule.Destination, rr.Destination)
		}
		if rel.ToMany || rr.Source == "" {
			continue
		}
		srcRel, ok := srcEntity.Relationship(rr.Source)
		if !ok {
			return "", fmt.Errorf("entity %q has no relationship %q", rule.Source, rr.Source)
		}
		if srcRel.ToMany {
			return "", fmt.Errorf("cannot fill to-one %s.%s from to-many %s.%s",
				rule.Destination, rel.Name, rule.Source, srcRel.Name)
		}
		cols = append(cols, store.RefColumnName(rel.Name))
		exprs = append(exprs, store.RefColumnName(srcRel.Name))
	}

	return fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM src.%s",
		store.TableName(rule.Destination),
		strings.Join(cols, ", "),
		strings.Join(exprs, ", "),
		store.TableName(rule.Source)), nil
}

// relationshipCopySQL builds the join-table copies for one entity's to-many
// relationships. Positions are carried over verbatim, preserving membership
// order for ordered relationships.
func relationshipCopySQL(rule mapping.EntityRule, from, to types.Model) ([]string, error) {
	dstEntity, _ := to.Entity(rule.Destination)
	srcEntity, _ := from.Entity(rule.Source)

	var stmts []string
	for _, rr := range rule.Relationships {
		rel, ok := dstEntity.Relationship(rr.Destination)
		if !ok || !rel.ToMany || rr.Source == "" {
			continue
		}
		srcRel, ok := srcEntity.Relationship(rr.Source)
		if !ok {
			return nil, fmt.Errorf("entity %q has no relationship %q", rule.Source, rr.Source)
		}
		if !srcRel.ToMany {
			return nil, fmt.Errorf("cannot fill to-many %s.%s from to-one %s.%s",
				rule.Destination, rel.Name, rule.Source, srcRel.Name)
		}
		stmts = append(stmts, fmt.Sprintf(
			"INSERT INTO main.%s (parent_pk, position, target_pk) SELECT parent_pk, position, target_pk FROM src.%s",
			store.JoinTableName(rule.Destination, rel.Name),
			store.JoinTableName(rule.Source, srcRel.Name)))
	}
	return stmts, nil
}

// defaultLiteral is the SQL literal filling a required attribute that has no
// source.
func defaultLiteral(t types.AttributeType) string {
	switch t {
	case types.AttrString:
		return "''"
	case types.AttrInt64, types.AttrDate, types.AttrBool:
		return "0"
	case types.AttrFloat64:
		return "0.0"
	case types.AttrBlob:
		return "X''"
	}
	return "NULL"
}
