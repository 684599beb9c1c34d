package types

import "time"

// StorageTag names the physical slot a value is stored in.
type StorageTag byte

const (
	TagString   StorageTag = 's'
	TagFloat    StorageTag = 'f'
	TagDateTime StorageTag = 'd'
)

func (t StorageTag) String() string {
	switch t {
	case TagString:
		return "string"
	case TagFloat:
		return "float"
	case TagDateTime:
		return "datetime"
	default:
		return "none"
	}
}

// OntologyObject is the row identity that property values attach to.
type OntologyObject struct {
	ObjectID      int64  `json:"object_id"`
	ObjectURI     string `json:"object_uri"`
	Container     string `json:"container"`
	OwnerObjectID int64  `json:"owner_object_id,omitempty"`
}

// MvValue wraps a value together with a missing-value indicator. Either part
// may be empty.
type MvValue struct {
	Value     any
	Indicator string
}

// ObjectProperty is one typed value cell. On read exactly one of the value
// slots is set, or none when only MvIndicator is present. On write callers set
// Value (or an MvValue) and the store fills the slots.
type ObjectProperty struct {
	ObjectID      int64  `json:"object_id"`
	ObjectURI     string `json:"object_uri"`
	Container     string `json:"container"`
	OwnerObjectID int64  `json:"owner_object_id,omitempty"`

	PropertyID  int64  `json:"property_id"`
	PropertyURI string `json:"property_uri"`
	Name        string `json:"name,omitempty"`
	RangeURI    string `json:"range_uri,omitempty"`
	Format      string `json:"format,omitempty"`

	TypeTag       StorageTag `json:"type_tag"`
	StringValue   *string    `json:"string_value,omitempty"`
	FloatValue    *float64   `json:"float_value,omitempty"`
	DateTimeValue *time.Time `json:"datetime_value,omitempty"`
	MvIndicator   string     `json:"mv_indicator,omitempty"`

	// Value is the native value. For writes it may be any loosely typed input.
	Value any `json:"value,omitempty"`

	// Descriptor, when set on a write, is ensured before the value is stored.
	Descriptor *PropertyDescriptor `json:"-"`
}

// NewObjectProperty builds a value cell for writing.
func NewObjectProperty(objectURI, container string, pd *PropertyDescriptor, value any) *ObjectProperty {
	op := &ObjectProperty{
		ObjectURI:  objectURI,
		Container:  container,
		Value:      value,
		Descriptor: pd,
	}
	if pd != nil {
		op.PropertyID = pd.PropertyID
		op.PropertyURI = pd.PropertyURI
		op.Name = pd.Name
		op.RangeURI = pd.RangeURI
		op.Format = pd.Format
	}
	if mv, ok := value.(MvValue); ok {
		op.Value = mv.Value
		op.MvIndicator = mv.Indicator
	}
	return op
}

// IsNull reports whether the cell carries neither a value nor an indicator.
func (op *ObjectProperty) IsNull() bool {
	return op.Value == nil && op.MvIndicator == ""
}

// PropertyMap is an ordered map of property URI to value cell.
type PropertyMap struct {
	keys   []string
	values map[string]*ObjectProperty
}

// NewPropertyMap returns an empty map.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[string]*ObjectProperty)}
}

// Set appends or replaces a value, keeping the original position on replace.
func (m *PropertyMap) Set(uri string, op *ObjectProperty) {
	if _, ok := m.values[uri]; !ok {
		m.keys = append(m.keys, uri)
	}
	m.values[uri] = op
}

// Get returns the value for uri.
func (m *PropertyMap) Get(uri string) (*ObjectProperty, bool) {
	op, ok := m.values[uri]
	return op, ok
}

// Keys returns the property URIs in order.
func (m *PropertyMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Values returns the cells in order.
func (m *PropertyMap) Values() []*ObjectProperty {
	out := make([]*ObjectProperty, len(m.keys))
	for i, k := range m.keys {
		out[i] = m.values[k]
	}
	return out
}

// Len returns the number of entries.
func (m *PropertyMap) Len() int { return len(m.keys) }

// Clone copies the map and its cells.
func (m *PropertyMap) Clone() *PropertyMap {
	c := &PropertyMap{keys: append([]string(nil), m.keys...), values: make(map[string]*ObjectProperty, len(m.values))}
	for k, v := range m.values {
		cell := *v
		c.values[k] = &cell
	}
	return c
}
