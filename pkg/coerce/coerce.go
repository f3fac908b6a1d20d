// Package coerce converts between the text stored in a cell and the typed
// value of its column. Writes are permissive: a value that does not fit its
// column type is stored verbatim and reads back as nil.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscrm/tablestore/pkg/constants"
)

// DateLayout is the canonical stored form of a date. It is fixed-width UTC,
// so lexical order equals chronological order.
const DateLayout = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

const dateOnlyLayout = "2006-01-02"

var (
	trueTokens  = map[string]struct{}{"true": {}, "1": {}, "yes": {}, "y": {}, "on": {}, "t": {}}
	falseTokens = map[string]struct{}{"false": {}, "0": {}, "no": {}, "n": {}, "off": {}, "f": {}}
)

// ParseNumber parses locale-invariant decimal text.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "0x") || strings.Contains(s, "_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseBool maps the fixed token set onto a boolean.
func ParseBool(s string) (bool, bool) {
	token := strings.ToLower(strings.TrimSpace(s))
	if _, ok := trueTokens[token]; ok {
		return true, true
	}
	if _, ok := falseTokens[token]; ok {
		return false, true
	}
	return false, false
}

// ParseDate parses ISO-8601 text into UTC. dateOnly is set when s carries no time part.
func ParseDate(s string) (t time.Time, dateOnly bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	if parsed, err := time.Parse(dateOnlyLayout, s); err == nil {
		return parsed.UTC(), true, true
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), false, true
		}
	}
	return time.Time{}, false, false
}

// ParseReference parses a stored row id.
func ParseReference(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseArray parses the JSON array stored in a customArray cell.
func ParseArray(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	return items, true
}

// FormatDate renders t in the canonical stored form.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatNumber renders f as the shortest decimal text.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsEmpty reports whether stored text counts as no value.
func IsEmpty(columnType, s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	return columnType == constants.ColumnTypeCustomArray && trimmed == "[]"
}

// Decode converts stored text to the column's typed value, or nil.
func Decode(columnType, s string) any {
	switch columnType {
	case constants.ColumnTypeNumber:
		if f, ok := ParseNumber(s); ok {
			return f
		}
		return nil
	case constants.ColumnTypeBoolean:
		if b, ok := ParseBool(s); ok {
			return b
		}
		return nil
	case constants.ColumnTypeDate:
		if t, _, ok := ParseDate(s); ok {
			return t
		}
		return nil
	case constants.ColumnTypeReference:
		if id, ok := ParseReference(s); ok {
			return id
		}
		return nil
	case constants.ColumnTypeCustomArray:
		if items, ok := ParseArray(s); ok {
			return items
		}
		return nil
	}
	return s
}

// Encode converts a raw request value into stored text. present is false
// for nil, which clears the cell.
func Encode(columnType string, raw any) (text string, present bool) {
	if raw == nil {
		return "", false
	}
	switch columnType {
	case constants.ColumnTypeNumber:
		return encodeNumber(raw), true
	case constants.ColumnTypeBoolean:
		return encodeBool(raw), true
	case constants.ColumnTypeDate:
		return encodeDate(raw), true
	case constants.ColumnTypeReference:
		return encodeReference(raw), true
	case constants.ColumnTypeCustomArray:
		return encodeArray(raw), true
	}
	return Stringify(raw), true
}

func encodeNumber(raw any) string {
	if f, ok := toFloat(raw); ok {
		return FormatNumber(f)
	}
	s := Stringify(raw)
	if f, ok := ParseNumber(s); ok {
		return FormatNumber(f)
	}
	return s
}

func encodeBool(raw any) string {
	if v, ok := raw.(bool); ok {
		return strconv.FormatBool(v)
	}
	if f, ok := toFloat(raw); ok && (f == 0 || f == 1) {
		return strconv.FormatBool(f == 1)
	}
	s := Stringify(raw)
	if b, ok := ParseBool(s); ok {
		return strconv.FormatBool(b)
	}
	return s
}

func encodeDate(raw any) string {
	switch v := raw.(type) {
	case time.Time:
		return FormatDate(v)
	case *time.Time:
		if v != nil {
			return FormatDate(*v)
		}
	}
	s := Stringify(raw)
	if t, _, ok := ParseDate(s); ok {
		return FormatDate(t)
	}
	return s
}

func encodeReference(raw any) string {
	if m, ok := raw.(map[string]any); ok {
		if id, exists := m["id"]; exists {
			raw = id
		}
	}
	if f, ok := toFloat(raw); ok && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	s := Stringify(raw)
	if id, ok := ParseReference(s); ok {
		return strconv.FormatInt(id, 10)
	}
	return s
}

func encodeArray(raw any) string {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, Stringify(item))
		}
	case string:
		if parsed, ok := ParseArray(v); ok {
			items = parsed
		} else if strings.TrimSpace(v) == "" {
			items = []string{}
		} else {
			items = []string{v}
		}
	default:
		items = []string{Stringify(raw)}
	}
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// ArrayItems returns the elements a raw customArray value would store.
func ArrayItems(raw any) []string {
	items, _ := ParseArray(encodeArray(raw))
	return items
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Stringify renders a raw request value as text.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return FormatNumber(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return FormatDate(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(raw)
}
