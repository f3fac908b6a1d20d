package schema

// ColumnDefinition represents a single column of a physical system table
type ColumnDefinition struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // SQL type, e.g. BIGINT, VARCHAR(64)
	PrimaryKey    bool   `json:"primary_key,omitempty"`
	Nullable      bool   `json:"nullable,omitempty"`
	Default       string `json:"default,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
}

// IndexDefinition represents an index on a table
type IndexDefinition struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKeyDefinition represents a foreign key constraint
type ForeignKeyDefinition struct {
	Column     string `json:"column"`
	References string `json:"references"` // format: "tableName(columnName)"
	OnDelete   string `json:"on_delete,omitempty"`
}

// TableDefinition represents a complete table schema
type TableDefinition struct {
	TableName   string                 `json:"table_name"`
	Description string                 `json:"description"`
	Columns     []ColumnDefinition     `json:"columns"`
	Indices     []IndexDefinition      `json:"indices,omitempty"`
	ForeignKeys []ForeignKeyDefinition `json:"foreign_keys,omitempty"`
}

// Column returns the named column definition
func (t TableDefinition) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}
