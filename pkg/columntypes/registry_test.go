package columntypes

import (
	"testing"

	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversCanonicalTypes(t *testing.T) {
	reg := GetRegistry()
	for _, ct := range constants.ColumnTypes {
		def, ok := reg.Get(ct)
		require.True(t, ok, "missing definition for %s", ct)
		assert.NotEmpty(t, def.Operators, ct)
		assert.Contains(t, def.Operators, constants.OpIsEmpty, ct)
		assert.Contains(t, def.Operators, constants.OpIsNotEmpty, ct)
	}
}

func TestOperatorSets(t *testing.T) {
	reg := GetRegistry()

	assert.True(t, reg.SupportsOperator(constants.ColumnTypeText, constants.OpRegex))
	assert.False(t, reg.SupportsOperator(constants.ColumnTypeText, constants.OpBetween))

	assert.True(t, reg.SupportsOperator(constants.ColumnTypeNumber, constants.OpBetween))
	assert.False(t, reg.SupportsOperator(constants.ColumnTypeNumber, constants.OpContains))

	assert.ElementsMatch(t, []string{
		constants.OpEquals, constants.OpNotEquals, constants.OpIsEmpty, constants.OpIsNotEmpty,
	}, reg.Operators(constants.ColumnTypeBoolean))
	assert.ElementsMatch(t, []string{
		constants.OpEquals, constants.OpNotEquals, constants.OpIsEmpty, constants.OpIsNotEmpty,
	}, reg.Operators(constants.ColumnTypeReference))

	for _, op := range []string{constants.OpToday, constants.OpYesterday, constants.OpThisWeek, constants.OpThisMonth, constants.OpThisYear, constants.OpBefore, constants.OpAfter} {
		assert.True(t, reg.SupportsOperator(constants.ColumnTypeDate, op), op)
	}

	assert.False(t, reg.SupportsOperator("json", constants.OpEquals))
}

func TestSearchableOnlyText(t *testing.T) {
	reg := GetRegistry()
	for _, ct := range constants.ColumnTypes {
		assert.Equal(t, ct == constants.ColumnTypeText, reg.IsSearchable(ct), ct)
	}
}

func TestOperatorsReturnsCopy(t *testing.T) {
	reg := GetRegistry()
	ops := reg.Operators(constants.ColumnTypeText)
	ops[0] = "mutated"
	assert.NotEqual(t, "mutated", reg.Operators(constants.ColumnTypeText)[0])
}
