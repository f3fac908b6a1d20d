package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseID parses a positive decimal identifier, as found in URL paths
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// ToInt64 converts JSON-decoded numbers and numeric strings to int64
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	}
	return 0, false
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }
