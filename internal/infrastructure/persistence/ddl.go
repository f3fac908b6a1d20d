package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/nexuscrm/tablestore/internal/domain/schema"
	"go.uber.org/zap"
)

var validTableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// BuildCreateTable renders CREATE TABLE IF NOT EXISTS for a definition.
// Text compares are binary; case-insensitive matching lowercases both sides.
func BuildCreateTable(def schema.TableDefinition) (string, error) {
	if !validTableName.MatchString(def.TableName) {
		return "", fmt.Errorf("table name '%s' must be snake_case (lowercase, alphanumeric, underscores)", def.TableName)
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", def.TableName)
	}

	var lines []string
	for _, col := range def.Columns {
		if col.Name == "" || col.Type == "" {
			return "", fmt.Errorf("invalid column definition in %s: name and type are required", def.TableName)
		}
		lines = append(lines, buildColumnDDL(col))
	}
	for _, idx := range def.Indices {
		lines = append(lines, buildIndexDDL(def.TableName, idx))
	}
	for _, fk := range def.ForeignKeys {
		if _, ok := def.Column(fk.Column); !ok {
			return "", fmt.Errorf("foreign key on unknown column %s.%s", def.TableName, fk.Column)
		}
		lines = append(lines, buildForeignKeyDDL(fk))
	}

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n  ", def.TableName))
	ddl.WriteString(strings.Join(lines, ",\n  "))
	ddl.WriteString("\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin")
	return ddl.String(), nil
}

// buildColumnDDL generates DDL for a single column
func buildColumnDDL(col schema.ColumnDefinition) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("`%s` %s", col.Name, col.Type))

	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", col.Default))
	}
	if col.AutoIncrement {
		sb.WriteString(" AUTO_INCREMENT")
	}
	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	return sb.String()
}

// buildIndexDDL generates inline index DDL for CREATE TABLE statement
func buildIndexDDL(tableName string, idx schema.IndexDefinition) string {
	indexName := idx.Name
	if indexName == "" {
		indexName = fmt.Sprintf("idx_%s_%s", tableName, strings.Join(idx.Columns, "_"))
	}

	columnList := strings.Join(idx.Columns, "`, `")
	if idx.Unique {
		return fmt.Sprintf("UNIQUE KEY `%s` (`%s`)", indexName, columnList)
	}
	return fmt.Sprintf("KEY `%s` (`%s`)", indexName, columnList)
}

// buildForeignKeyDDL generates DDL for a foreign key constraint
func buildForeignKeyDDL(fk schema.ForeignKeyDefinition) string {
	ddl := fmt.Sprintf("FOREIGN KEY (`%s`) REFERENCES %s", fk.Column, fk.References)
	if fk.OnDelete != "" {
		ddl += fmt.Sprintf(" ON DELETE %s", fk.OnDelete)
	}
	return ddl
}

// CreatePhysicalTables executes the DDL for each definition in order.
// Definitions must be ordered so referenced tables come first.
func CreatePhysicalTables(ctx context.Context, db *sql.DB, defs []schema.TableDefinition) error {
	for _, def := range defs {
		ddl, err := BuildCreateTable(def)
		if err != nil {
			return err
		}
		zap.L().Debug("📝 Executing DDL", zap.String("table", def.TableName), zap.String("ddl", ddl))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.TableName, err)
		}
		zap.L().Info("📐 Table ready", zap.String("table", def.TableName))
	}
	return nil
}
