package store

import (
	"fmt"

	"github.com/stockroom/stockroom/pkg/types"
)

// metaTable holds the single structural-metadata row of a store. The schema
// snapshot is stored snappy-compressed JSON; no version name is persisted.
const metaTable = "store_meta"

const createMetaTableSQL = `
CREATE TABLE IF NOT EXISTS store_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    fingerprint TEXT NOT NULL,
    snapshot BLOB NOT NULL,
    written_at INTEGER NOT NULL
)`

// TableName returns the table holding instances of an entity.
func TableName(entity string) string {
	return "e_" + entity
}

// JoinTableName returns the table holding a to-many relationship's
// membership rows.
func JoinTableName(entity, rel string) string {
	return "r_" + entity + "__" + rel
}

// RefColumnName returns the column holding a to-one relationship target.
func RefColumnName(rel string) string {
	return rel + "_pk"
}

// CreateEntityTableSQL returns the CREATE TABLE statement for one entity.
// Every table carries a pk INTEGER PRIMARY KEY; migration copies preserve pk
// values, which is what keeps relationship rows valid across entity renames.
func CreateEntityTableSQL(e types.Entity) string {
	sql := "CREATE TABLE IF NOT EXISTS " + TableName(e.Name) + " (\n    pk INTEGER PRIMARY KEY"
	for _, a := range e.Attributes {
		sql += ",\n    " + a.Name + " " + a.Type.SQLiteType()
	}
	for _, r := range e.Relationships {
		if !r.ToMany {
			sql += ",\n    " + RefColumnName(r.Name) + " INTEGER"
		}
	}
	return sql + "\n)"
}

// CreateJoinTableSQL returns the CREATE TABLE statement for one to-many
// relationship. position records source iteration order; for ordered
// relationships it is the relationship's membership order.
func CreateJoinTableSQL(entity string, r types.Relationship) []string {
	name := JoinTableName(entity, r.Name)
	return []string{
		"CREATE TABLE IF NOT EXISTS " + name + ` (
    parent_pk INTEGER NOT NULL,
    position INTEGER NOT NULL,
    target_pk INTEGER NOT NULL,
    PRIMARY KEY (parent_pk, position)
)`,
		"CREATE INDEX IF NOT EXISTS idx_" + name + "_target ON " + name + "(target_pk)",
	}
}

// AllSchemaSQL returns every statement needed to lay out a store for model.
func AllSchemaSQL(model types.Model) ([]string, error) {
	stmts := []string{createMetaTableSQL}
	for _, e := range model.Entities {
		if e.Name == metaTable || TableName(e.Name) == metaTable {
			return nil, fmt.Errorf("entity name %q is reserved", e.Name)
		}
		if _, ok := e.Attribute("pk"); ok {
			return nil, fmt.Errorf("entity %q: attribute name \"pk\" is reserved", e.Name)
		}
		stmts = append(stmts, CreateEntityTableSQL(e))
		for _, r := range e.Relationships {
			if r.ToMany {
				stmts = append(stmts, CreateJoinTableSQL(e.Name, r)...)
			}
		}
	}
	return stmts, nil
}
