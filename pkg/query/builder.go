package query

import (
	"fmt"
	"sort"
	"strings"
)

// QueryType represents the type of SQL query
type QueryType string

const (
	QueryTypeSelect QueryType = "SELECT"
	QueryTypeInsert QueryType = "INSERT"
	QueryTypeUpdate QueryType = "UPDATE"
	QueryTypeDelete QueryType = "DELETE"
)

// QueryResult represents the built SQL query and parameters
type QueryResult struct {
	SQL    string
	Params []interface{}
}

// Builder is a fluent SQL query builder
type Builder struct {
	queryType    QueryType
	table        string
	alias        string
	fields       []string
	whereClauses []string
	params       []interface{}
	orderBy      []string
	orderParams  []interface{}
	limit        *int
	offset       *int
	values       map[string]interface{}
}

// From creates a new SELECT query builder
func From(table string) *Builder {
	return &Builder{
		queryType: QueryTypeSelect,
		table:     table,
	}
}

// Insert creates a new INSERT query builder. Columns are emitted in
// sorted order so the statement text is stable.
func Insert(table string, data map[string]interface{}) *Builder {
	return &Builder{
		queryType: QueryTypeInsert,
		table:     table,
		values:    data,
	}
}

// Update creates a new UPDATE query builder
func Update(table string) *Builder {
	return &Builder{
		queryType: QueryTypeUpdate,
		table:     table,
		values:    make(map[string]interface{}),
	}
}

// Delete creates a new DELETE query builder
func Delete(table string) *Builder {
	return &Builder{
		queryType: QueryTypeDelete,
		table:     table,
	}
}

// As sets a table alias used to qualify selected fields
func (b *Builder) As(alias string) *Builder {
	b.alias = alias
	return b
}

func (b *Builder) qualifier() string {
	if b.alias != "" {
		return b.alias
	}
	return b.table
}

// Select specifies which fields to select
func (b *Builder) Select(fields ...string) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	for _, field := range fields {
		if field == "*" || strings.ContainsAny(field, ".(`") {
			b.fields = append(b.fields, field)
			continue
		}
		b.fields = append(b.fields, fmt.Sprintf("`%s`.`%s`", b.qualifier(), field))
	}
	return b
}

// Where adds a WHERE condition
func (b *Builder) Where(condition string, value ...interface{}) *Builder {
	b.whereClauses = append(b.whereClauses, condition)
	b.params = append(b.params, value...)
	return b
}

// WhereRaw adds a raw WHERE condition with parameters
func (b *Builder) WhereRaw(sql string, params []interface{}) *Builder {
	if sql != "" {
		b.whereClauses = append(b.whereClauses, sql)
		b.params = append(b.params, params...)
	}
	return b
}

// WhereIn adds "field IN (?, ...)". An empty list matches nothing.
func (b *Builder) WhereIn(field string, values []interface{}) *Builder {
	if len(values) == 0 {
		return b.Where("1 = 0")
	}
	return b.Where(fmt.Sprintf("%s IN (%s)", field, Placeholders(len(values))), values...)
}

// Set sets values for UPDATE query
func (b *Builder) Set(data map[string]interface{}) *Builder {
	if b.queryType != QueryTypeUpdate {
		return b
	}
	b.values = data
	return b
}

// OrderBy appends an ORDER BY term
func (b *Builder) OrderBy(field string, direction string) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	col := field
	if !strings.ContainsAny(field, ".`(") {
		col = fmt.Sprintf("`%s`.`%s`", b.qualifier(), field)
	}
	b.orderBy = append(b.orderBy, strings.TrimSpace(fmt.Sprintf("%s %s", col, direction)))
	return b
}

// OrderByRaw appends a raw ORDER BY expression with its parameters
func (b *Builder) OrderByRaw(expr string, params ...interface{}) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	b.orderBy = append(b.orderBy, expr)
	b.orderParams = append(b.orderParams, params...)
	return b
}

// Limit adds LIMIT clause
func (b *Builder) Limit(n int) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	b.limit = &n
	return b
}

// Offset adds OFFSET clause
func (b *Builder) Offset(n int) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	b.offset = &n
	return b
}

// Build constructs the final SQL query
func (b *Builder) Build() QueryResult {
	switch b.queryType {
	case QueryTypeInsert:
		sql, params := b.buildInsert()
		return QueryResult{SQL: sql, Params: params}
	case QueryTypeUpdate:
		sql, params := b.buildUpdate()
		return QueryResult{SQL: sql, Params: params}
	case QueryTypeDelete:
		return QueryResult{SQL: b.buildDelete(), Params: b.params}
	}

	params := append([]interface{}{}, b.params...)
	params = append(params, b.orderParams...)
	return QueryResult{SQL: b.buildSelect(), Params: params}
}

func (b *Builder) buildSelect() string {
	var parts []string

	fields := "*"
	if len(b.fields) > 0 {
		fields = strings.Join(b.fields, ", ")
	}
	from := fmt.Sprintf("`%s`", b.table)
	if b.alias != "" {
		from += fmt.Sprintf(" AS `%s`", b.alias)
	}
	parts = append(parts, fmt.Sprintf("SELECT %s FROM %s", fields, from))

	if len(b.whereClauses) > 0 {
		parts = append(parts, fmt.Sprintf("WHERE %s", strings.Join(b.whereClauses, " AND ")))
	}
	if len(b.orderBy) > 0 {
		parts = append(parts, fmt.Sprintf("ORDER BY %s", strings.Join(b.orderBy, ", ")))
	}
	if b.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *b.limit))
	}
	if b.offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET %d", *b.offset))
	}

	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Builder) buildInsert() (string, []interface{}) {
	var cols []string
	var params []interface{}
	for _, key := range sortedKeys(b.values) {
		cols = append(cols, fmt.Sprintf("`%s`", key))
		params = append(params, b.values[key])
	}

	sql := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		b.table,
		strings.Join(cols, ", "),
		Placeholders(len(cols)))

	return sql, params
}

func (b *Builder) buildUpdate() (string, []interface{}) {
	var setClauses []string
	var params []interface{}
	for _, key := range sortedKeys(b.values) {
		setClauses = append(setClauses, fmt.Sprintf("`%s` = ?", key))
		params = append(params, b.values[key])
	}

	sql := fmt.Sprintf("UPDATE `%s` SET %s", b.table, strings.Join(setClauses, ", "))
	if len(b.whereClauses) > 0 {
		sql += fmt.Sprintf(" WHERE %s", strings.Join(b.whereClauses, " AND "))
		params = append(params, b.params...)
	}
	return sql, params
}

func (b *Builder) buildDelete() string {
	sql := fmt.Sprintf("DELETE FROM `%s`", b.table)
	if len(b.whereClauses) > 0 {
		sql += fmt.Sprintf(" WHERE %s", strings.Join(b.whereClauses, " AND "))
	}
	return sql
}

// Placeholders returns n comma-separated "?" markers
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
