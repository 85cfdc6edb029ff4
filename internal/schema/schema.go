// Package schema owns the cached structural description of the connected
// database. A Snapshot is rebuilt wholesale on refresh and never mutated
// after publication; callers share one snapshot pointer.
package schema

import (
	"context"
	"time"
)

type Snapshot struct {
	Tables      []Table   `json:"tables"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

type Table struct {
	Name          string         `json:"name"`
	Columns       []Column       `json:"columns"`
	PrimaryKey    string         `json:"primary_key,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	ForeignKey bool   `json:"foreign_key,omitempty"`
}

type Relationship struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// Introspector produces a fresh snapshot from the live database.
type Introspector interface {
	Introspect(ctx context.Context) (Snapshot, error)
}

// DiscoveryError reports a failed introspection pass. The cache publishes
// nothing when it sees one; the previous snapshot stays in effect.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return "schema discovery failed: " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
