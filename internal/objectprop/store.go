// Package objectprop stores objects and their typed property values, and
// bulk-imports rows of values.
package objectprop

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/internal/validate"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of infrastructure errors raised by this package.
var Error = errs.Class("objectprop")

// inChunk bounds id lists in IN clauses and deletes.
const inChunk = 1000

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 500

// Descriptors is what the object store needs from the descriptor store.
type Descriptors interface {
	EnsurePropertyDescriptor(ctx context.Context, actor types.Actor, pd *types.PropertyDescriptor) (*types.PropertyDescriptor, error)
	GetPropertyDescriptor(ctx context.Context, uri, container string) (*types.PropertyDescriptor, error)
	GetPropertyDescriptorByID(ctx context.Context, id int64) (*types.PropertyDescriptor, error)
	GetDomainDescriptor(ctx context.Context, uri, container string) (*types.DomainDescriptor, error)
	GetPropertiesForDomain(ctx context.Context, domainURI, container string) ([]types.DomainMember, error)
	DeleteDomain(ctx context.Context, domainURI, container string) error
}

// Cache is the per-object part of the cache. *cache.Manager satisfies it.
type Cache interface {
	ObjectValues(ctx context.Context, container, objectURI string, load func(context.Context) (*types.PropertyMap, error)) (*types.PropertyMap, error)
	ObjectID(ctx context.Context, container, objectURI string, load func(context.Context) (int64, error)) (int64, error)
	InvalidateObjects(container string, objectURIs ...string)
	InvalidateObjectIDs(container string, objectURIs ...string)
}

// Config tunes a Store.
type Config struct {
	Import types.ImportConfig
	// MvPolicy decides which missing-value codes are accepted. Nil accepts
	// the default codes.
	MvPolicy types.MvPolicy
	// Lookups backs lookup validators; nil skips them.
	Lookups validate.LookupResolver
	// Registerer receives the store's counters; nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Store reads and writes objects and their values.
type Store struct {
	db          *db.DB
	descriptors Descriptors
	cache       Cache
	cfg         Config
	metrics     *metrics
	log         *zap.Logger
}

// New returns a store.
func New(d *db.DB, descriptors Descriptors, cache Cache, cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MvPolicy == nil {
		cfg.MvPolicy = types.MvCodes(types.DefaultMvIndicators)
	}
	if cfg.Import.BatchSize <= 0 {
		cfg.Import.BatchSize = types.DefaultImportBatchSize
	}
	if cfg.Import.AnalyzeEvery <= 0 {
		cfg.Import.AnalyzeEvery = types.DefaultAnalyzeEvery
	}
	return &Store{
		db:          d,
		descriptors: descriptors,
		cache:       cache,
		cfg:         cfg,
		metrics:     newMetrics(cfg.Registerer),
		log:         log.Named("objectprop"),
	}
}

type metrics struct {
	values  *prometheus.CounterVec
	rows    prometheus.Counter
	batches prometheus.Counter
	analyze prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		values: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontology",
			Subsystem: "values",
			Name:      "inserted_total",
			Help:      "Property values written, by storage slot.",
		}, []string{"tag"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ontology",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Rows read by the bulk importer.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ontology",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Value batches flushed by the bulk importer.",
		}),
		analyze: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ontology",
			Subsystem: "import",
			Name:      "statistics_refreshes_total",
			Help:      "Planner statistics refreshes triggered during imports.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.values, m.rows, m.batches, m.analyze)
	}
	return m
}
