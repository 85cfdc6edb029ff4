package schema

import (
	"fmt"
	"strings"
)

// Describe renders a snapshot into the textual schema description fed to
// the SQL-generation prompt: one paragraph per table with inline
// constraint annotations, followed by a relationships list.
func Describe(snapshot *Snapshot) string {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return "The database contains no tables."
	}

	var b strings.Builder
	for _, table := range snapshot.Tables {
		b.WriteString("Table ")
		b.WriteString(table.Name)
		b.WriteString(": columns ")
		for i, column := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(column.Name)
			b.WriteString(" (")
			b.WriteString(describeColumn(column))
			b.WriteString(")")
		}
		b.WriteString(".\n")
	}

	relationships := collectRelationships(snapshot)
	if len(relationships) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, line := range relationships {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeColumn(column Column) string {
	parts := []string{column.DataType}
	if column.PrimaryKey {
		parts = append(parts, "primary key")
	}
	if column.ForeignKey {
		parts = append(parts, "foreign key")
	}
	if column.Nullable {
		parts = append(parts, "nullable")
	}
	if column.Default != "" {
		parts = append(parts, "default "+column.Default)
	}
	return strings.Join(parts, ", ")
}

func collectRelationships(snapshot *Snapshot) []string {
	var lines []string
	for _, table := range snapshot.Tables {
		for _, rel := range table.Relationships {
			lines = append(lines, fmt.Sprintf("%s.%s -> %s.%s",
				table.Name, rel.Column, rel.ReferencesTable, rel.ReferencesColumn))
		}
	}
	return lines
}
