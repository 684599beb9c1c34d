package proptype

import (
	"math"
	"strconv"
	"time"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Slots is the physical form of a value: one of three typed columns.
type Slots struct {
	Tag      types.StorageTag
	String   *string
	Float    *float64
	DateTime *time.Time
}

// IsEmpty reports whether no slot is set.
func (s Slots) IsEmpty() bool {
	return s.String == nil && s.Float == nil && s.DateTime == nil
}

// ToStorage places a native value (as returned by Convert) into the slot for
// pt. Booleans are stored as 1.0 or 0.0. Integers whose magnitude exceeds
// 2^53 are rejected because a float slot cannot hold them exactly.
func ToStorage(native any, pt PropertyType) (Slots, error) {
	s := Slots{Tag: pt.StorageTag()}
	if native == nil {
		return s, nil
	}
	switch s.Tag {
	case types.TagString:
		str, err := toString(native)
		if err != nil {
			return s, err
		}
		v := str.(string)
		s.String = &v
	case types.TagFloat:
		var f float64
		switch x := native.(type) {
		case bool:
			if x {
				f = 1
			}
		case int64:
			if x > maxExactFloat || x < -maxExactFloat {
				return s, errLossyStorage
			}
			f = float64(x)
		case float64:
			f = x
		default:
			v, err := toFloat(native)
			if err != nil {
				return s, err
			}
			f = v.(float64)
		}
		s.Float = &f
	case types.TagDateTime:
		t, err := toTime(native, dateTimeLayouts)
		if err != nil {
			return s, err
		}
		s.DateTime = &t
	default:
		return s, errInvalidType
	}
	return s, nil
}

// FromStorage rebuilds the native value for pt from its slots. It returns nil
// when the slot for pt is empty.
func FromStorage(s Slots, pt PropertyType) any {
	switch pt.StorageTag() {
	case types.TagString:
		if s.String == nil {
			return nil
		}
		return *s.String
	case types.TagDateTime:
		if s.DateTime == nil {
			return nil
		}
		return *s.DateTime
	case types.TagFloat:
		if s.Float == nil {
			return nil
		}
		f := *s.Float
		switch pt {
		case Boolean:
			return f != 0
		case Integer, BigInt:
			return int64(math.Round(f))
		}
		return f
	}
	return nil
}

// FormatValue renders a native value for display and for string-length checks.
func FormatValue(native any) string {
	switch x := native.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	if s, err := toString(native); err == nil {
		return s.(string)
	}
	return ""
}
