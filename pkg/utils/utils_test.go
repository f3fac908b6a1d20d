package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.True(t, IsValidUUID(id))
	assert.NotEqual(t, id, GenerateID())
	assert.False(t, IsValidUUID("not-a-uuid"))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{float64(7), 7, true},
		{7.5, 0, false},
		{"12", 12, true},
		{int(3), 3, true},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToInt64(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
