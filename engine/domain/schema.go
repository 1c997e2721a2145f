package domain

// Schema describes the tables of a connected relational database.
type Schema struct {
	Tables []Table `json:"tables"`
	// Dialect is the SQL dialect of the source, "postgres" or "sqlite".
	Dialect string `json:"-"`
}

// Table is a single table descriptor.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Column is a (name, declared type) pair.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ForeignKey relates a local column to a column of another table.
type ForeignKey struct {
	Column         string `json:"column"`
	ReferredTable  string `json:"referred_table"`
	ReferredColumn string `json:"referred_column"`
}
