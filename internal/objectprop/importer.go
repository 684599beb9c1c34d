package objectprop

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/internal/validate"
	"github.com/mesh-intelligence/ontology/pkg/lsid"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// maxImportErrors stops an import that keeps failing.
const maxImportErrors = 1000

// Row is one record to import, keyed by column name.
type Row map[string]any

// RowReader yields rows until it returns io.EOF.
type RowReader interface {
	Read() (Row, error)
}

// Rows reads from a slice.
type Rows []Row

type sliceReader struct {
	rows Rows
	next int
}

// Reader returns a RowReader over r.
func (r Rows) Reader() RowReader { return &sliceReader{rows: r} }

func (r *sliceReader) Read() (Row, error) {
	if r.next >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.next]
	r.next++
	return row, nil
}

// ImportHelper names the object each imported row becomes.
type ImportHelper interface {
	ObjectURI(row Row, index int) (string, error)
}

// GUIDHelper gives every row a new LSID in Namespace.
type GUIDHelper struct {
	Namespace string
}

// ObjectURI returns a fresh LSID.
func (h GUIDHelper) ObjectURI(Row, int) (string, error) {
	return lsid.New(h.Namespace, uuid.NewString()).String(), nil
}

var templateRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// TemplateHelper builds object URIs by substituting ${column} references in
// Template with the row's values. Column names match case-insensitively.
type TemplateHelper struct {
	Template string
}

// ObjectURI expands the template for row.
func (h TemplateHelper) ObjectURI(row Row, index int) (string, error) {
	lower := make(map[string]any, len(row))
	for k, v := range row {
		lower[strings.ToLower(k)] = v
	}
	var missing []string
	uri := templateRef.ReplaceAllStringFunc(h.Template, func(ref string) string {
		name := templateRef.FindStringSubmatch(ref)[1]
		v, ok := lower[strings.ToLower(name)]
		if !ok || v == nil {
			missing = append(missing, name)
			return ""
		}
		return proptype.FormatValue(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("row %d: no value for %s in object URI template", index+1, strings.Join(missing, ", "))
	}
	if strings.HasPrefix(strings.ToLower(uri), "urn:lsid:") {
		if _, err := lsid.Check(uri); err != nil {
			return "", fmt.Errorf("row %d: %w", index+1, err)
		}
	}
	return uri, nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	SkipValidation bool
	// Progress, when set, is called after every flushed batch.
	Progress func(ImportResult)
}

// ImportResult counts what an import did.
type ImportResult struct {
	Rows                int `json:"rows"`
	Values              int `json:"values"`
	Batches             int `json:"batches"`
	StatisticsRefreshes int `json:"statistics_refreshes"`
}

// importColumn is a domain member with the column names that feed it.
type importColumn struct {
	pd    *types.PropertyDescriptor
	keys  []string
	mvKey string
}

// importColumns builds the import map of a domain: each member is matched
// by name, label, URI or import alias, and its missing-value column by
// <name>_MVIndicator. The domain's required flag is folded into the copy.
func importColumns(members []types.DomainMember) []importColumn {
	cols := make([]importColumn, 0, len(members))
	for _, dm := range members {
		pd := dm.Property.Clone()
		pd.Required = pd.Required || dm.Required
		var keys []string
		for _, k := range append([]string{pd.Name, pd.Label, pd.PropertyURI}, pd.AliasList()...) {
			if k != "" {
				keys = append(keys, strings.ToLower(k))
			}
		}
		col := importColumn{pd: pd, keys: keys}
		if pd.MvEnabled {
			col.mvKey = strings.ToLower(pd.Name + types.MvIndicatorSuffix)
		}
		cols = append(cols, col)
	}
	return cols
}

// Import reads rows and stores them as objects of domainURI in container,
// all in one transaction. Pending values are flushed every BatchSize rows
// of values and planner statistics are refreshed every AnalyzeEvery
// flushes. Conversion and validation failures are collected across rows
// and returned together, with nothing committed. Cancelling ctx stops the
// import before the next row with types.ErrCancelled.
func (s *Store) Import(ctx context.Context, actor types.Actor, container, domainURI string, rows RowReader, helper ImportHelper, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		members, err := s.descriptors.GetPropertiesForDomain(ctx, domainURI, container)
		if err != nil {
			return err
		}
		columns := importColumns(members)
		vctx := validate.NewContext(ctx, container, actor, s.cfg.Lookups)

		var (
			verrs   types.ValidationErrors
			pending []pendingValue
			uris    []string
		)
		flush := func() error {
			if len(pending) == 0 {
				return nil
			}
			if len(verrs) > 0 {
				pending = pending[:0]
				return nil
			}
			if err := s.writeValues(ctx, pending); err != nil {
				return err
			}
			res.Values += len(pending)
			res.Batches++
			s.metrics.batches.Inc()
			s.log.Debug("flushed import batch",
				zap.String("domain", domainURI),
				zap.Int("values", len(pending)),
				zap.Int("batch", res.Batches))
			pending = pending[:0]

			if res.Batches%s.cfg.Import.AnalyzeEvery == 0 {
				if err := s.db.Analyze(ctx); err != nil {
					return err
				}
				res.StatisticsRefreshes++
				s.metrics.analyze.Inc()
				s.log.Debug("refreshed statistics", zap.Int("batch", res.Batches))
			}
			if opts.Progress != nil {
				opts.Progress(res)
			}
			return nil
		}

		for index := 0; ; index++ {
			row, err := rows.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return Error.Wrap(err)
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w after %d rows: %w", types.ErrCancelled, res.Rows, err)
			}
			res.Rows++
			s.metrics.rows.Inc()

			objectURI, err := helper.ObjectURI(row, index)
			if err != nil {
				return err
			}
			objectID, err := s.EnsureObject(ctx, container, objectURI, 0)
			if err != nil {
				return err
			}
			uris = append(uris, objectURI)

			lower := make(map[string]any, len(row))
			for k, v := range row {
				lower[strings.ToLower(k)] = v
			}

			var rowErrs types.ValidationErrors
			for _, col := range columns {
				raw, present := lookupColumn(lower, col.keys)
				var indicator string
				if col.mvKey != "" {
					if v, ok := lower[col.mvKey]; ok && v != nil {
						indicator = proptype.FormatValue(v)
					}
				}
				if !present && indicator == "" && !col.pd.Required {
					continue
				}
				cell, slots, ok := s.prepare(vctx, container, col.pd, raw, indicator, &rowErrs, opts.SkipValidation)
				if !ok || cell.IsNull() {
					continue
				}
				pending = append(pending, pendingValue{objectID: objectID, propertyID: col.pd.PropertyID, slots: slots, mv: cell.MvIndicator})
			}
			for _, e := range rowErrs {
				e.Message = fmt.Sprintf("row %d: %s", index+1, e.Message)
				verrs = append(verrs, e)
			}
			if len(verrs) >= maxImportErrors {
				break
			}

			if len(pending) >= s.cfg.Import.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if len(verrs) > 0 {
			return verrs
		}
		if err := flush(); err != nil {
			return err
		}
		db.AfterCommit(ctx, func() { s.cache.InvalidateObjects(container, uris...) })
		return nil
	})
	if err != nil {
		return res, err
	}
	s.log.Info("import complete",
		zap.String("domain", domainURI),
		zap.String("container", container),
		zap.Int("rows", res.Rows),
		zap.Int("values", res.Values))
	return res, nil
}

func lookupColumn(row map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v, true
		}
	}
	return nil, false
}
