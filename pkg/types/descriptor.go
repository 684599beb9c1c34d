package types

import "strings"

// MvIndicatorSuffix is reserved for the companion column that carries a
// property's missing-value code. Property names may not end with it.
const MvIndicatorSuffix = "_MVIndicator"

// PropertyOrderURI names the pseudo-property whose string value lists, as
// comma-separated property ids, the order in which an object's values are
// returned.
const PropertyOrderURI = "urn:lsid:ontology:Property:PropertyOrder"

// Lookup points a property at a foreign key target.
type Lookup struct {
	Container string `json:"container,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Query     string `json:"query,omitempty"`
}

// IsZero reports whether no lookup is configured.
func (l Lookup) IsZero() bool { return l.Schema == "" && l.Query == "" }

// Validator kinds stored with a property.
const (
	ValidatorRegex  = "regex"
	ValidatorRange  = "range"
	ValidatorLookup = "lookup"
)

// ValidatorDef is the persisted form of a custom validator attached to a property.
type ValidatorDef struct {
	Kind       string `json:"kind"`
	Expression string `json:"expression,omitempty"`
	Message    string `json:"message,omitempty"`
}

// PropertyDescriptor is a named, typed column definition.
type PropertyDescriptor struct {
	PropertyID    int64  `json:"property_id"`
	PropertyURI   string `json:"property_uri"`
	Name          string `json:"name"`
	Label         string `json:"label,omitempty"`
	Description   string `json:"description,omitempty"`
	RangeURI      string `json:"range_uri"`
	ConceptURI    string `json:"concept_uri,omitempty"`
	Format        string `json:"format,omitempty"`
	SemanticType  string `json:"semantic_type,omitempty"`
	SearchTerms   string `json:"search_terms,omitempty"`
	OntologyURI   string `json:"ontology_uri,omitempty"`
	Container     string `json:"container"`
	Project       string `json:"project"`
	Required      bool   `json:"required,omitempty"`
	Hidden        bool   `json:"hidden,omitempty"`
	Scale         int    `json:"scale,omitempty"`
	MvEnabled     bool   `json:"mv_enabled,omitempty"`
	Lookup        Lookup `json:"lookup,omitzero"`
	DefaultValue  string `json:"default_value_type,omitempty"`
	ImportAliases string `json:"import_aliases,omitempty"`
	URL           string `json:"url,omitempty"`
	Faceting      string `json:"faceting,omitempty"`
	PHI           string `json:"phi,omitempty"`
	Measure       bool   `json:"measure,omitempty"`
	Dimension     bool   `json:"dimension,omitempty"`
	CreatedBy     int64  `json:"created_by,omitempty"`
	ModifiedBy    int64  `json:"modified_by,omitempty"`

	Validators []ValidatorDef `json:"validators,omitempty"`
}

// IsPersisted reports whether the descriptor has been assigned an id.
func (pd *PropertyDescriptor) IsPersisted() bool { return pd != nil && pd.PropertyID != 0 }

// Equal reports whether both descriptors are persisted with the same id.
// An unpersisted descriptor is equal to nothing.
func (pd *PropertyDescriptor) Equal(o *PropertyDescriptor) bool {
	if !pd.IsPersisted() || !o.IsPersisted() {
		return false
	}
	return pd.PropertyID == o.PropertyID
}

// Clone returns a deep copy.
func (pd *PropertyDescriptor) Clone() *PropertyDescriptor {
	if pd == nil {
		return nil
	}
	c := *pd
	c.Validators = append([]ValidatorDef(nil), pd.Validators...)
	return &c
}

// DisplayName returns Name, or a name derived from the URI when Name is empty.
func (pd *PropertyDescriptor) DisplayName() string {
	if pd.Name != "" {
		return pd.Name
	}
	return PropertyNameFromURI(pd.PropertyURI)
}

// AliasList splits ImportAliases on commas and whitespace.
func (pd *PropertyDescriptor) AliasList() []string {
	return strings.FieldsFunc(pd.ImportAliases, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// PropertyNameFromURI returns the part of uri after the last ':', '#' or '.'.
func PropertyNameFromURI(uri string) string {
	i := strings.LastIndexAny(uri, ":#.")
	if i < 0 {
		return uri
	}
	return uri[i+1:]
}

// DomainDescriptor is a named set of properties: the shape of a table.
type DomainDescriptor struct {
	DomainID          int64  `json:"domain_id"`
	DomainURI         string `json:"domain_uri"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Container         string `json:"container"`
	Project           string `json:"project"`
	StorageSchemaName string `json:"storage_schema_name,omitempty"`
	StorageTableName  string `json:"storage_table_name,omitempty"`
	// TS is the optimistic concurrency token; every update increments it.
	TS         int64 `json:"_ts"`
	CreatedBy  int64 `json:"created_by,omitempty"`
	ModifiedBy int64 `json:"modified_by,omitempty"`
}

// IsPersisted reports whether the domain has been assigned an id.
func (dd *DomainDescriptor) IsPersisted() bool { return dd != nil && dd.DomainID != 0 }

// IsProvisioned reports whether physical storage has been created for the domain.
func (dd *DomainDescriptor) IsProvisioned() bool {
	return dd.StorageSchemaName != "" && dd.StorageTableName != ""
}

// Equal reports whether both domains are persisted with the same id.
func (dd *DomainDescriptor) Equal(o *DomainDescriptor) bool {
	if !dd.IsPersisted() || !o.IsPersisted() {
		return false
	}
	return dd.DomainID == o.DomainID
}

// Clone returns a copy.
func (dd *DomainDescriptor) Clone() *DomainDescriptor {
	if dd == nil {
		return nil
	}
	c := *dd
	return &c
}

// PropertyDomain is a membership row. Required and SortOrder apply within
// the domain only.
type PropertyDomain struct {
	PropertyID int64 `json:"property_id"`
	DomainID   int64 `json:"domain_id"`
	Required   bool  `json:"required"`
	SortOrder  int   `json:"sort_order"`
}

// DomainMember is a property as seen through one domain.
type DomainMember struct {
	Property  *PropertyDescriptor
	Required  bool
	SortOrder int
}

// InsertOutcome tells a caller whether a conditional insert wrote a row or
// found one already present.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}
