package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"analysis-engine/internal/common/errors"
)

// ToFloat64 converts numeric types and numeric strings to float64
func ToFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case []byte:
		return ToFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.ValidationError(fmt.Sprintf("'%s' is not a number", v))
		}
		return f, nil
	default:
		return 0, errors.ValidationError(fmt.Sprintf("cannot convert %T to float64", value))
	}
}

// ToInt64 converts integral values and integer strings to int64. Floats
// are accepted only when they have no fractional part.
func ToInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.ValidationError(fmt.Sprintf("'%s' is not an integer", v))
		}
		return i, nil
	}
	f, err := ToFloat64(value)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, errors.ValidationError(fmt.Sprintf("%v is not an integer", value))
	}
	return int64(f), nil
}

// ToBool converts booleans, numbers and the usual true/false spellings
func ToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errors.ValidationError(fmt.Sprintf("'%s' is not a boolean", v))
		}
		return b, nil
	}
	f, err := ToFloat64(value)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

// ToString renders a value as text; nil stays the empty string
func ToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// IsBlank reports whether value is nil or a string made of whitespace only
func IsBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return strings.TrimSpace(string(v)) == ""
	default:
		return false
	}
}

// TupleKey encodes values into a map key that keeps nil apart from "" and
// "<nil>". Each value is length prefixed so no separator byte inside a
// value can make two tuples collide.
func TupleKey(values []interface{}) string {
	var sb strings.Builder
	for _, v := range values {
		if v == nil {
			sb.WriteByte('-')
			continue
		}
		s := ToString(v)
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteByte(':')
		sb.WriteString(s)
	}
	return sb.String()
}

// NormalizeValue turns driver values into plain Go values
func NormalizeValue(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
