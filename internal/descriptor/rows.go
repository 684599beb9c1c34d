package descriptor

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

var propertyColumns = []string{
	"property_uri", "name", "label", "description", "range_uri", "concept_uri",
	"format", "semantic_type", "search_terms", "ontology_uri", "container", "project",
	"required", "hidden", "scale", "mv_enabled",
	"lookup_container", "lookup_schema", "lookup_query",
	"default_value_type", "import_aliases", "url", "faceting", "phi",
	"measure", "dimension", "created_by", "modified_by",
}

var domainColumns = []string{
	"domain_uri", "name", "description", "container", "project",
	"storage_schema_name", "storage_table_name", "ts", "created_by", "modified_by",
}

// selectList prefixes each column with alias and leads with the id column.
func selectList(alias, id string, cols []string) string {
	out := make([]string, 0, len(cols)+1)
	out = append(out, alias+"."+id)
	for _, c := range cols {
		out = append(out, alias+"."+c)
	}
	return strings.Join(out, ", ")
}

var (
	propertySelect = selectList("pd", "property_id", propertyColumns)
	domainSelect   = selectList("dd", "domain_id", domainColumns)
)

func propertyValues(pd *types.PropertyDescriptor) []any {
	return []any{
		pd.PropertyURI, pd.Name, db.NullString(pd.Label), db.NullString(pd.Description), pd.RangeURI, db.NullString(pd.ConceptURI),
		db.NullString(pd.Format), db.NullString(pd.SemanticType), db.NullString(pd.SearchTerms), db.NullString(pd.OntologyURI), pd.Container, pd.Project,
		pd.Required, pd.Hidden, pd.Scale, pd.MvEnabled,
		db.NullString(pd.Lookup.Container), db.NullString(pd.Lookup.Schema), db.NullString(pd.Lookup.Query),
		db.NullString(pd.DefaultValue), db.NullString(pd.ImportAliases), db.NullString(pd.URL), db.NullString(pd.Faceting), db.NullString(pd.PHI),
		pd.Measure, pd.Dimension, pd.CreatedBy, pd.ModifiedBy,
	}
}

func domainValues(dd *types.DomainDescriptor) []any {
	return []any{
		dd.DomainURI, dd.Name, db.NullString(dd.Description), dd.Container, dd.Project,
		db.NullString(dd.StorageSchemaName), db.NullString(dd.StorageTableName), dd.TS, dd.CreatedBy, dd.ModifiedBy,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanProperty reads a row selected with propertySelect, followed by extra
// destinations.
func scanProperty(row scanner, extra ...any) (*types.PropertyDescriptor, error) {
	var (
		pd types.PropertyDescriptor
		n  struct {
			label, description, concept, format, semantic, search, ontology sql.NullString
			lookupContainer, lookupSchema, lookupQuery                      sql.NullString
			defaultValue, aliases, url, faceting, phi                       sql.NullString
		}
	)
	dest := []any{
		&pd.PropertyID,
		&pd.PropertyURI, &pd.Name, &n.label, &n.description, &pd.RangeURI, &n.concept,
		&n.format, &n.semantic, &n.search, &n.ontology, &pd.Container, &pd.Project,
		&pd.Required, &pd.Hidden, &pd.Scale, &pd.MvEnabled,
		&n.lookupContainer, &n.lookupSchema, &n.lookupQuery,
		&n.defaultValue, &n.aliases, &n.url, &n.faceting, &n.phi,
		&pd.Measure, &pd.Dimension, &pd.CreatedBy, &pd.ModifiedBy,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	pd.Label = n.label.String
	pd.Description = n.description.String
	pd.ConceptURI = n.concept.String
	pd.Format = n.format.String
	pd.SemanticType = n.semantic.String
	pd.SearchTerms = n.search.String
	pd.OntologyURI = n.ontology.String
	pd.Lookup = types.Lookup{Container: n.lookupContainer.String, Schema: n.lookupSchema.String, Query: n.lookupQuery.String}
	pd.DefaultValue = n.defaultValue.String
	pd.ImportAliases = n.aliases.String
	pd.URL = n.url.String
	pd.Faceting = n.faceting.String
	pd.PHI = n.phi.String
	return &pd, nil
}

func scanDomain(row scanner) (*types.DomainDescriptor, error) {
	var (
		dd                                 types.DomainDescriptor
		description, schemaName, tableName sql.NullString
	)
	err := row.Scan(&dd.DomainID,
		&dd.DomainURI, &dd.Name, &description, &dd.Container, &dd.Project,
		&schemaName, &tableName, &dd.TS, &dd.CreatedBy, &dd.ModifiedBy)
	if err != nil {
		return nil, err
	}
	dd.Description = description.String
	dd.StorageSchemaName = schemaName.String
	dd.StorageTableName = tableName.String
	return &dd, nil
}

// queryProperties runs a query selecting propertySelect and attaches the
// stored validators.
func (s *Store) queryProperties(ctx context.Context, query string, args ...any) ([]*types.PropertyDescriptor, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var out []*types.PropertyDescriptor
	for rows.Next() {
		pd, err := scanProperty(rows)
		if err != nil {
			_ = rows.Close()
			return nil, Error.Wrap(err)
		}
		out = append(out, pd)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, Error.Wrap(err)
	}
	_ = rows.Close()

	if err := s.attachValidators(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) queryDomains(ctx context.Context, query string, args ...any) ([]*types.DomainDescriptor, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var out []*types.DomainDescriptor
	for rows.Next() {
		dd, err := scanDomain(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, dd)
	}
	return out, Error.Wrap(rows.Err())
}

func first[T any](list []T) T {
	var zero T
	if len(list) == 0 {
		return zero
	}
	return list[0]
}
