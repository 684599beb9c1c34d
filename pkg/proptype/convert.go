package proptype

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// maxExactFloat is the largest integer a float64 slot holds without loss.
const maxExactFloat = 1 << 53

var (
	errUnparsable   = errors.New("unparsable value")
	errOutOfRange   = errors.New("value out of range")
	errFractional   = errors.New("value has a fractional part")
	errUnsupported  = errors.New("unsupported input type")
	errInvalidType  = errors.New("invalid property type")
	errLossyStorage = errors.New("value cannot be stored without losing precision")
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

var timeLayouts = []string{
	"15:04:05.999999999",
	"15:04:05",
	"15:04",
	"3:04 PM",
	"3:04PM",
}

// Convert coerces a loosely typed value into the native representation of
// pt: bool, string, int64, float64 or time.Time. A nil input, a nil
// *time.Time, or an MvValue wrapping nil, converts to nil. Integers a float64
// cannot hold exactly are rejected for Double. The returned error is not property specific;
// ConvertFor wraps it.
func Convert(value any, pt PropertyType) (any, error) {
	if mv, ok := value.(types.MvValue); ok {
		value = mv.Value
	}
	if mv, ok := value.(*types.MvValue); ok {
		if mv == nil {
			return nil, nil
		}
		value = mv.Value
	}
	if t, ok := value.(*time.Time); ok && t == nil {
		return nil, nil
	}
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && pt.StorageTag() != types.TagString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch pt {
	case Boolean:
		return toBool(value)
	case String, MultiLine, Resource, FileLink, Attachment, XmlText:
		return toString(value)
	case Integer:
		n, err := toInt(value)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errOutOfRange
		}
		return n, nil
	case BigInt:
		return toInt(value)
	case Double:
		return toFloat(value)
	case DateTime:
		return toTime(value, dateTimeLayouts)
	case Date:
		t, err := toTime(value, dateTimeLayouts)
		if err != nil {
			return nil, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
	case Time:
		t, err := toTime(value, timeLayouts)
		if err != nil {
			return nil, err
		}
		return time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	default:
		return nil, errInvalidType
	}
}

// ConvertFor converts value to the type of pd, naming the property in any error.
func ConvertFor(pd *types.PropertyDescriptor, value any) (any, error) {
	pt := Of(pd)
	v, err := Convert(value, pt)
	if err != nil {
		return nil, &types.ConversionError{
			Property: pd.DisplayName(),
			Type:     pt.String(),
			Value:    fmt.Sprint(value),
			Err:      err,
		}
	}
	return v, nil
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "on", "1":
			return true, nil
		case "false", "f", "no", "n", "off", "0":
			return false, nil
		}
		return nil, errUnparsable
	}
	if f, ok := asFloat(v); ok {
		return f != 0, nil
	}
	return nil, errUnsupported
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	}
	if n, ok := asInt(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, errUnsupported
}

func toInt(v any) (int64, error) {
	if n, ok := asInt(v); ok {
		return n, nil
	}
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return 0, errOutOfRange
		}
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, errOutOfRange
		}
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		} else if errors.Is(err, strconv.ErrRange) {
			return 0, errOutOfRange
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errUnparsable
		}
		return floatToInt(f)
	}
	return 0, errUnsupported
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errOutOfRange
	}
	if f != math.Trunc(f) {
		return 0, errFractional
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errOutOfRange
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	if n, ok := asInt(v); ok {
		if n > maxExactFloat || n < -maxExactFloat {
			return nil, errLossyStorage
		}
		return float64(n), nil
	}
	if f, ok := asFloat(v); ok {
		return f, nil
	}
	switch x := v.(type) {
	case uint:
		return exactFloat(uint64(x))
	case uint64:
		return exactFloat(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return nil, errOutOfRange
			}
			return nil, errUnparsable
		}
		return f, nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	}
	return nil, errUnsupported
}

func exactFloat(n uint64) (any, error) {
	if n > maxExactFloat {
		return nil, errLossyStorage
	}
	return float64(n), nil
}

func toTime(v any, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x != nil {
			return *x, nil
		}
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errUnparsable
	}
	return time.Time{}, errUnsupported
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}
