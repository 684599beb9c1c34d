// Package proptype is the registry of scalar property types. Each type has a
// canonical URI, the storage slot its values live in, a default scale, an
// input hint, and conversions to and from its native Go representation.
package proptype

import (
	"strings"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// PropertyType is one of the closed set of scalar types.
type PropertyType int

const (
	Invalid PropertyType = iota
	Boolean
	String
	MultiLine
	Resource
	Integer
	FileLink
	Attachment
	DateTime
	Double
	XmlText
	BigInt
	Time
	Date
)

const (
	xsd = "http://www.w3.org/2001/XMLSchema#"
	exp = "http://www.labkey.org/exp/xml#"
)

type info struct {
	name  string
	uri   string
	tag   types.StorageTag
	scale int
	hint  string
}

var registry = [...]info{
	Invalid:    {name: "invalid"},
	Boolean:    {"Boolean", xsd + "boolean", types.TagFloat, 1, "checkbox"},
	String:     {"String", xsd + "string", types.TagString, 4000, "text"},
	MultiLine:  {"MultiLine", xsd + "multiLine", types.TagString, 4000, "textarea"},
	Resource:   {"Resource", "http://www.w3.org/2000/01/rdf-schema#Resource", types.TagString, 4000, "text"},
	Integer:    {"Integer", xsd + "int", types.TagFloat, 10, "text"},
	FileLink:   {"FileLink", exp + "fileLink", types.TagString, 400, "file"},
	Attachment: {"Attachment", exp + "attachment", types.TagString, 100, "file"},
	DateTime:   {"DateTime", xsd + "dateTime", types.TagDateTime, 23, "date"},
	Double:     {"Double", xsd + "double", types.TagFloat, 15, "text"},
	XmlText:    {"XmlText", exp + "text-xml", types.TagString, 4000, "textarea"},
	BigInt:     {"BigInt", xsd + "long", types.TagFloat, 19, "text"},
	Time:       {"Time", xsd + "time", types.TagDateTime, 12, "time"},
	Date:       {"Date", xsd + "date", types.TagDateTime, 10, "date"},
}

// byURI maps canonical URIs and accepted aliases to types. Keys are lowercase.
var byURI = func() map[string]PropertyType {
	m := make(map[string]PropertyType, len(registry)+4)
	for pt := Boolean; pt <= Date; pt++ {
		m[strings.ToLower(registry[pt].uri)] = pt
	}
	m[strings.ToLower(xsd+"integer")] = Integer
	m[strings.ToLower(xsd+"float")] = Double
	m[strings.ToLower(xsd+"decimal")] = Double
	m[strings.ToLower("http://cpas.fhcrc.org/exp/xml#fileLink")] = FileLink
	return m
}()

// All returns every valid type in declaration order.
func All() []PropertyType {
	out := make([]PropertyType, 0, len(registry)-1)
	for pt := Boolean; pt <= Date; pt++ {
		out = append(out, pt)
	}
	return out
}

// FromURI returns the type registered for uri.
func FromURI(uri string) (PropertyType, bool) {
	pt, ok := byURI[strings.ToLower(uri)]
	return pt, ok
}

// FromName returns the type with the given name, ignoring case.
func FromName(name string) (PropertyType, bool) {
	for pt := Boolean; pt <= Date; pt++ {
		if strings.EqualFold(registry[pt].name, name) {
			return pt, true
		}
	}
	return Invalid, false
}

// TypeFromURI resolves a type from a concept URI and a range URI. The concept
// wins when it names a type; unknown URIs fall back to def.
func TypeFromURI(conceptURI, rangeURI string, def PropertyType) PropertyType {
	if pt, ok := FromURI(conceptURI); ok {
		return pt
	}
	if pt, ok := FromURI(rangeURI); ok {
		return pt
	}
	return def
}

// Of returns the type of a descriptor, defaulting to Resource.
func Of(pd *types.PropertyDescriptor) PropertyType {
	return TypeFromURI(pd.ConceptURI, pd.RangeURI, Resource)
}

// Valid reports whether pt is a registered type.
func (pt PropertyType) Valid() bool { return pt > Invalid && pt <= Date }

func (pt PropertyType) info() info {
	if !pt.Valid() {
		return registry[Invalid]
	}
	return registry[pt]
}

func (pt PropertyType) String() string               { return pt.info().name }
func (pt PropertyType) URI() string                  { return pt.info().uri }
func (pt PropertyType) StorageTag() types.StorageTag { return pt.info().tag }
func (pt PropertyType) Scale() int                   { return pt.info().scale }
func (pt PropertyType) InputHint() string            { return pt.info().hint }

// IsStringFamily reports whether values are stored as text and subject to a
// length limit.
func (pt PropertyType) IsStringFamily() bool { return pt.StorageTag() == types.TagString }

// ScaleFor returns the descriptor's scale, or the type default when unset.
func ScaleFor(pd *types.PropertyDescriptor) int {
	if pd.Scale > 0 {
		return pd.Scale
	}
	return Of(pd).Scale()
}
