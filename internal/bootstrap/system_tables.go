package bootstrap

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/nexuscrm/tablestore/internal/domain/schema"
)

//go:embed system_tables.json
var systemTablesJSON []byte

// GetSystemTableDefinitions returns definitions for all system tables,
// ordered so that every foreign key target precedes its referrers
func GetSystemTableDefinitions() ([]schema.TableDefinition, error) {
	var definitions []schema.TableDefinition
	if err := json.Unmarshal(systemTablesJSON, &definitions); err != nil {
		return nil, fmt.Errorf("failed to parse system_tables.json: %w", err)
	}
	return definitions, nil
}
