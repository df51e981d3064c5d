// Package querymodel defines the structured, UI-editable description of a
// SELECT query. Values of these types are immutable inputs to the SQL
// compiler in pkg/sqlgen; the JSON shape matches what clients persist.
//
//nolint:revive // package contains related DTO types
package querymodel

// Operator is a comparison operator of a filter condition.
type Operator string

// Supported condition operators.
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpLike         Operator = "LIKE"
	OpIn           Operator = "IN"
	OpIsNull       Operator = "IS NULL"
	OpIsNotNull    Operator = "IS NOT NULL"
)

// Connector joins a condition to the condition before it in its group.
type Connector string

// Supported connectors.
const (
	ConnectorAnd Connector = "AND"
	ConnectorOr  Connector = "OR"
)

// JoinType is the kind of JOIN clause.
type JoinType string

// Supported join types.
const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
)

// Direction is an ORDER BY direction.
type Direction string

// Supported directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ColumnSelection selects one column of one table for the SELECT list.
// Both fields are plain identifiers without dots.
type ColumnSelection struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Condition is one WHERE or HAVING filter.
//
// Column may be a plain or dotted (table.column) reference. Value is required
// unless Operator is a null test; for IN it is a comma-separated list.
// Group partitions conditions; Connector is only consulted between
// conditions of the same group.
type Condition struct {
	ID        string    `json:"id"`
	Column    string    `json:"column"`
	Operator  Operator  `json:"operator"`
	Value     *string   `json:"value,omitempty"`
	Connector Connector `json:"connector"`
	Group     int       `json:"group"`
}

// RawValue returns the condition value, or "" when unset.
func (c Condition) RawValue() string {
	if c.Value == nil {
		return ""
	}
	return *c.Value
}

// Join is an explicit JOIN against another table. LeftColumn and RightColumn
// are dotted table.column references.
type Join struct {
	ID          string   `json:"id"`
	JoinType    JoinType `json:"joinType"`
	Table       string   `json:"table"`
	LeftColumn  string   `json:"leftColumn"`
	RightColumn string   `json:"rightColumn"`
}

// OrderBy is one ORDER BY term. List order is the SQL tie-break order.
type OrderBy struct {
	ID        string    `json:"id"`
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// Config is the complete query model.
//
// The first entry of SelectedTables is the FROM target; other tables are
// reachable only through Joins. Limit and Offset are nil when unset.
type Config struct {
	SelectedTables   []string          `json:"selectedTables"`
	SelectedColumns  []ColumnSelection `json:"selectedColumns"`
	WhereConditions  []Condition       `json:"whereConditions"`
	Joins            []Join            `json:"joins"`
	OrderBy          []OrderBy         `json:"orderBy"`
	GroupBy          []string          `json:"groupBy"`
	HavingConditions []Condition       `json:"havingConditions"`
	Limit            *int              `json:"limit"`
	Offset           *int              `json:"offset"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
