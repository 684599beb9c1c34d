package db

// Schema DDL. Column-type markers are expanded per dialect by Dialect.DDL.
const (
	createContainers = `CREATE TABLE IF NOT EXISTS containers (
    container_id TEXT PRIMARY KEY,
    parent_id TEXT,
    name TEXT NOT NULL
)`

	createObject = `CREATE TABLE IF NOT EXISTS object (
    object_id {{id}},
    object_uri TEXT NOT NULL,
    container TEXT NOT NULL,
    owner_object_id BIGINT,
    UNIQUE (container, object_uri)
)`

	createPropertyDescriptor = `CREATE TABLE IF NOT EXISTS property_descriptor (
    property_id {{id}},
    property_uri VARCHAR(4000) NOT NULL,
    name VARCHAR(200) NOT NULL,
    label VARCHAR(200),
    description TEXT,
    range_uri VARCHAR(200) NOT NULL,
    concept_uri VARCHAR(200),
    format VARCHAR(50),
    semantic_type TEXT,
    search_terms TEXT,
    ontology_uri TEXT,
    container TEXT NOT NULL,
    project TEXT NOT NULL,
    required BOOLEAN NOT NULL DEFAULT FALSE,
    hidden BOOLEAN NOT NULL DEFAULT FALSE,
    scale INTEGER NOT NULL DEFAULT 0,
    mv_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    lookup_container TEXT,
    lookup_schema TEXT,
    lookup_query TEXT,
    default_value_type TEXT,
    import_aliases VARCHAR(2000),
    url VARCHAR(4000),
    faceting TEXT,
    phi TEXT,
    measure BOOLEAN NOT NULL DEFAULT FALSE,
    dimension BOOLEAN NOT NULL DEFAULT FALSE,
    created_by BIGINT NOT NULL DEFAULT 0,
    modified_by BIGINT NOT NULL DEFAULT 0,
    UNIQUE (property_uri, project)
)`

	createDomainDescriptor = `CREATE TABLE IF NOT EXISTS domain_descriptor (
    domain_id {{id}},
    domain_uri VARCHAR(4000) NOT NULL,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    container TEXT NOT NULL,
    project TEXT NOT NULL,
    storage_schema_name TEXT,
    storage_table_name TEXT,
    ts BIGINT NOT NULL DEFAULT 0,
    created_by BIGINT NOT NULL DEFAULT 0,
    modified_by BIGINT NOT NULL DEFAULT 0,
    UNIQUE (domain_uri, project)
)`

	createPropertyDomain = `CREATE TABLE IF NOT EXISTS property_domain (
    property_id BIGINT NOT NULL,
    domain_id BIGINT NOT NULL,
    required BOOLEAN NOT NULL DEFAULT FALSE,
    sort_order INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (property_id, domain_id)
)`

	createObjectProperty = `CREATE TABLE IF NOT EXISTS object_property (
    object_id BIGINT NOT NULL,
    property_id BIGINT NOT NULL,
    type_tag CHAR(1) NOT NULL,
    string_value TEXT,
    float_value DOUBLE PRECISION,
    datetime_value {{timestamp}},
    mv_indicator VARCHAR(50),
    PRIMARY KEY (object_id, property_id)
)`

	createPropertyValidator = `CREATE TABLE IF NOT EXISTS property_validator (
    validator_id {{id}},
    property_id BIGINT NOT NULL,
    kind VARCHAR(50) NOT NULL,
    expression TEXT,
    message TEXT
)`
)

// Index DDL.
const (
	indexObjectContainer      = `CREATE INDEX IF NOT EXISTS idx_object_container ON object (container)`
	indexObjectOwner          = `CREATE INDEX IF NOT EXISTS idx_object_owner ON object (owner_object_id)`
	indexObjectPropertyProp   = `CREATE INDEX IF NOT EXISTS idx_object_property_property ON object_property (property_id)`
	indexPropertyContainer    = `CREATE INDEX IF NOT EXISTS idx_property_descriptor_container ON property_descriptor (container)`
	indexDomainContainer      = `CREATE INDEX IF NOT EXISTS idx_domain_descriptor_container ON domain_descriptor (container)`
	indexPropertyDomainDomain = `CREATE INDEX IF NOT EXISTS idx_property_domain_domain ON property_domain (domain_id)`
	indexValidatorProperty    = `CREATE INDEX IF NOT EXISTS idx_property_validator_property ON property_validator (property_id)`
)

// Column bounds declared by the schema; descriptor validation enforces them
// before any write.
const (
	MaxNameLength          = 200
	MaxLabelLength         = 200
	MaxURILength           = 4000
	MaxRangeURILength      = 200
	MaxConceptURILength    = 200
	MaxImportAliasesLength = 2000
	MaxURLLength           = 4000
	MaxFormatLength        = 50
	MaxMvIndicatorLength   = 50
)

var schemaDDL = []string{
	createContainers,
	createObject,
	createPropertyDescriptor,
	createDomainDescriptor,
	createPropertyDomain,
	createObjectProperty,
	createPropertyValidator,
}

var indexDDL = []string{
	indexObjectContainer,
	indexObjectOwner,
	indexObjectPropertyProp,
	indexPropertyContainer,
	indexDomainContainer,
	indexPropertyDomainDomain,
	indexValidatorProperty,
}
