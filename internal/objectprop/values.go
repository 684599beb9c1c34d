package objectprop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/internal/validate"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// InsertOptions controls InsertProperties.
type InsertOptions struct {
	// OwnerObjectURI, when set, is ensured and becomes the owner of objects
	// created by the call.
	OwnerObjectURI string
	// SkipValidation disables the validation pipeline; conversion still
	// applies.
	SkipValidation bool
	// InsertNullValues stores cells that carry neither a value nor a
	// missing-value indicator.
	InsertNullValues bool
}

// pendingValue is one row of object_property ready to be written.
type pendingValue struct {
	objectID   int64
	propertyID int64
	slots      proptype.Slots
	mv         string
}

// descriptorResolver memoizes descriptor resolution within one call.
type descriptorResolver struct {
	s         *Store
	container string
	actor     types.Actor
	byURI     map[string]*types.PropertyDescriptor
}

func (s *Store) newResolver(container string, actor types.Actor) *descriptorResolver {
	return &descriptorResolver{s: s, container: container, actor: actor, byURI: make(map[string]*types.PropertyDescriptor)}
}

// resolve returns the persisted descriptor for a value: its own descriptor,
// ensured when unsaved, or the one named by its property id or URI.
func (r *descriptorResolver) resolve(ctx context.Context, v *types.ObjectProperty) (*types.PropertyDescriptor, error) {
	key := v.PropertyURI
	if v.Descriptor != nil {
		key = v.Descriptor.PropertyURI
	}
	if pd, ok := r.byURI[key]; ok && key != "" {
		return pd, nil
	}

	var (
		pd  *types.PropertyDescriptor
		err error
	)
	switch {
	case v.Descriptor != nil && v.Descriptor.IsPersisted():
		pd = v.Descriptor
	case v.Descriptor != nil:
		candidate := v.Descriptor.Clone()
		if candidate.Container == "" {
			candidate.Container = r.container
		}
		pd, err = r.s.descriptors.EnsurePropertyDescriptor(ctx, r.actor, candidate)
	case v.PropertyID != 0:
		pd, err = r.s.descriptors.GetPropertyDescriptorByID(ctx, v.PropertyID)
	case v.PropertyURI != "":
		pd, err = r.s.descriptors.GetPropertyDescriptor(ctx, v.PropertyURI, r.container)
	default:
		err = &types.InvalidDescriptorError{Reason: "value names no property"}
	}
	if err != nil {
		return nil, err
	}
	r.byURI[pd.PropertyURI] = pd
	return pd, nil
}

func fieldName(pd *types.PropertyDescriptor) string {
	if pd.Label != "" {
		return pd.Label
	}
	return pd.DisplayName()
}

// prepare converts a raw value for pd into a stored cell and runs the
// validation pipeline unless skip is set. Failures are appended to verrs;
// ok is false when the value could not be converted.
func (s *Store) prepare(vctx *validate.Context, container string, pd *types.PropertyDescriptor, raw any, indicator string, verrs *types.ValidationErrors, skip bool) (cell *types.ObjectProperty, slots proptype.Slots, ok bool) {
	label := fieldName(pd)
	value := raw
	if mv, isMv := raw.(types.MvValue); isMv {
		value = mv.Value
		if mv.Indicator != "" {
			indicator = mv.Indicator
		}
	}

	if indicator != "" {
		switch {
		case !pd.MvEnabled:
			verrs.Add(label, "missing value indicators are not enabled for this field")
		case len(indicator) > db.MaxMvIndicatorLength || !s.cfg.MvPolicy.Valid(container, indicator):
			verrs.Add(label, "%q is not a valid missing value indicator", types.Preview(indicator))
		}
	}

	native, err := proptype.ConvertFor(pd, value)
	if err != nil {
		verrs.AddError(label, err)
		return nil, slots, false
	}
	pt := proptype.Of(pd)
	slots, err = proptype.ToStorage(native, pt)
	if err != nil {
		verrs.AddError(label, &types.ConversionError{Property: label, Type: pt.String(), Value: proptype.FormatValue(native), Err: err})
		return nil, slots, false
	}

	cell = &types.ObjectProperty{
		Container:     container,
		PropertyID:    pd.PropertyID,
		PropertyURI:   pd.PropertyURI,
		Name:          pd.Name,
		RangeURI:      pd.RangeURI,
		Format:        pd.Format,
		TypeTag:       slots.Tag,
		StringValue:   slots.String,
		FloatValue:    slots.Float,
		DateTimeValue: slots.DateTime,
		MvIndicator:   indicator,
		Value:         native,
	}

	if !skip {
		validators, err := vctx.ValidatorsFor(pd)
		if err != nil {
			verrs.AddError(label, err)
		}
		validate.Validate(validators, pd, cell, verrs, vctx)
	}
	return cell, slots, true
}

// InsertProperties stores values in one transaction. Descriptors and
// objects that do not exist yet are created. Every value is converted and
// validated first; if any fails, nothing is written and the failures are
// returned together as types.ValidationErrors.
func (s *Store) InsertProperties(ctx context.Context, container string, actor types.Actor, opts InsertOptions, values ...*types.ObjectProperty) error {
	if len(values) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		var ownerID int64
		if opts.OwnerObjectURI != "" {
			var err error
			if ownerID, err = s.EnsureObject(ctx, container, opts.OwnerObjectURI, 0); err != nil {
				return err
			}
		}

		resolver := s.newResolver(container, actor)
		vctx := validate.NewContext(ctx, container, actor, s.cfg.Lookups)
		var (
			verrs   types.ValidationErrors
			pending = make([]pendingValue, 0, len(values))
			touched = touchedObjects{}
		)
		for _, v := range values {
			pd, err := resolver.resolve(ctx, v)
			if err != nil {
				return err
			}
			objectID, objectURI, objectContainer, err := s.resolveObject(ctx, container, v, ownerID)
			if err != nil {
				return err
			}

			cell, slots, ok := s.prepare(vctx, container, pd, v.Value, v.MvIndicator, &verrs, opts.SkipValidation)
			if !ok || (cell.IsNull() && !opts.InsertNullValues) {
				continue
			}
			pending = append(pending, pendingValue{objectID: objectID, propertyID: pd.PropertyID, slots: slots, mv: cell.MvIndicator})
			touched.add(objectContainer, objectURI)
		}
		if len(verrs) > 0 {
			return verrs
		}

		if err := s.writeValues(ctx, pending); err != nil {
			return err
		}
		db.AfterCommit(ctx, func() { touched.invalidate(s.cache) })
		return nil
	})
}

// resolveObject returns the id, URI and container of the object a value
// belongs to, creating the object in container when it is named by URI only.
func (s *Store) resolveObject(ctx context.Context, container string, v *types.ObjectProperty, ownerID int64) (int64, string, string, error) {
	if v.ObjectID != 0 {
		var uri, in string
		err := s.db.QueryRow(ctx, `SELECT object_uri, container FROM object WHERE object_id = ?`, v.ObjectID).Scan(&uri, &in)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", "", fmt.Errorf("%w: object id %d", types.ErrNotFound, v.ObjectID)
		}
		return v.ObjectID, uri, in, Error.Wrap(err)
	}
	owner := v.OwnerObjectID
	if owner == 0 {
		owner = ownerID
	}
	id, err := s.EnsureObject(ctx, container, v.ObjectURI, owner)
	return id, v.ObjectURI, container, err
}

// touchedObjects collects the objects a write changed, by container.
type touchedObjects map[string][]string

func (t touchedObjects) add(container, objectURI string) {
	for _, uri := range t[container] {
		if uri == objectURI {
			return
		}
	}
	t[container] = append(t[container], objectURI)
}

func (t touchedObjects) invalidate(c Cache) {
	for container, uris := range t {
		c.InvalidateObjects(container, uris...)
	}
}

// writeValues inserts pending rows grouped by storage slot: float, then
// date-time, then string, then rows that carry only a missing-value code.
func (s *Store) writeValues(ctx context.Context, pending []pendingValue) error {
	groups := map[string][]pendingValue{}
	for _, p := range pending {
		key := string(rune(p.slots.Tag))
		if p.slots.IsEmpty() {
			key = "mv"
		}
		groups[key] = append(groups[key], p)
	}
	for _, key := range []string{"f", "d", "s", "mv"} {
		group := groups[key]
		for start := 0; start < len(group); start += insertChunk {
			if err := s.insertRows(ctx, group[start:min(start+insertChunk, len(group))]); err != nil {
				return err
			}
		}
		if len(group) > 0 {
			s.metrics.values.WithLabelValues(key).Add(float64(len(group)))
		}
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, rows []pendingValue) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO object_property (object_id, property_id, type_tag, string_value, float_value, datetime_value, mv_indicator) VALUES `)
	args := make([]any, 0, len(rows)*7)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.objectID, r.propertyID, string(rune(r.slots.Tag)),
			r.slots.String, r.slots.Float, r.slots.DateTime, db.NullString(r.mv))
	}
	if _, err := s.db.Exec(ctx, b.String(), args...); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// UpdateObjectProperty replaces the value of one property on one object:
// the stored cell is deleted, then the new value inserted. Clearing a value
// without insertNullValues still validates the null so a now-violated
// required rule is reported. Only the first failure is returned.
func (s *Store) UpdateObjectProperty(ctx context.Context, actor types.Actor, container string, pd *types.PropertyDescriptor, objectURI string, value any, ownerObjectURI string, insertNullValues bool) (*types.ObjectProperty, error) {
	var out *types.ObjectProperty
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		prop, err := s.newResolver(container, actor).resolve(ctx, &types.ObjectProperty{Descriptor: pd})
		if err != nil {
			return err
		}
		var ownerID int64
		if ownerObjectURI != "" {
			if ownerID, err = s.EnsureObject(ctx, container, ownerObjectURI, 0); err != nil {
				return err
			}
		}
		objectID, err := s.EnsureObject(ctx, container, objectURI, ownerID)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx, `DELETE FROM object_property WHERE object_id = ? AND property_id = ?`,
			objectID, prop.PropertyID); err != nil {
			return Error.Wrap(err)
		}

		cell := types.NewObjectProperty(objectURI, container, prop, value)
		cell.ObjectID = objectID
		if cell.IsNull() && !insertNullValues {
			var verrs types.ValidationErrors
			if !validate.Validate(nil, prop, cell, &verrs, nil) {
				return verrs[:1]
			}
			out = cell
		} else {
			err := s.InsertProperties(ctx, container, actor, InsertOptions{InsertNullValues: insertNullValues}, cell)
			var verrs types.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 1 {
				return verrs[:1]
			}
			if err != nil {
				return err
			}
			values, err := s.loadValues(ctx, container, objectURI)
			if err != nil {
				return err
			}
			if stored, ok := values.Get(prop.PropertyURI); ok {
				out = stored
			} else {
				out = cell
			}
		}

		db.AfterCommit(ctx, func() { s.cache.InvalidateObjects(container, objectURI) })
		return nil
	})
	return out, err
}

// DeleteProperties removes every value of the given objects of container.
func (s *Store) DeleteProperties(ctx context.Context, container string, objectIDs ...int64) error {
	if len(objectIDs) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		uris, err := s.objectURIs(ctx, container, objectIDs)
		if err != nil {
			return err
		}
		for _, chunk := range chunkIDs(objectIDs) {
			_, err := s.db.Exec(ctx,
				`DELETE FROM object_property WHERE object_id IN (SELECT object_id FROM object WHERE container = ? AND object_id IN (`+db.Placeholders(len(chunk))+`))`,
				append([]any{container}, db.Int64Args(chunk)...)...)
			if err != nil {
				return Error.Wrap(err)
			}
		}
		s.log.Debug("deleted object values", zap.String("container", container), zap.Int("objects", len(uris)))
		db.AfterCommit(ctx, func() { s.cache.InvalidateObjects(container, uris...) })
		return nil
	})
}

// DeleteProperty removes one property's value from one object.
func (s *Store) DeleteProperty(ctx context.Context, container, objectURI, propertyURI string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		pd, err := s.descriptors.GetPropertyDescriptor(ctx, propertyURI, container)
		if err != nil {
			return err
		}
		objectID, err := s.objectID(ctx, container, objectURI)
		if err != nil {
			return err
		}
		if objectID == 0 {
			return fmt.Errorf("%w: object %s", types.ErrNotFound, objectURI)
		}
		if _, err := s.db.Exec(ctx, `DELETE FROM object_property WHERE object_id = ? AND property_id = ?`,
			objectID, pd.PropertyID); err != nil {
			return Error.Wrap(err)
		}
		db.AfterCommit(ctx, func() { s.cache.InvalidateObjects(container, objectURI) })
		return nil
	})
}

// GetPropertyObjects returns the values of an object keyed by property URI.
// The order follows the object's PropertyOrder value when it has one;
// otherwise properties come in the order they were defined.
func (s *Store) GetPropertyObjects(ctx context.Context, container, objectURI string) (*types.PropertyMap, error) {
	load := func(ctx context.Context) (*types.PropertyMap, error) {
		return s.loadValues(ctx, container, objectURI)
	}
	if s.db.InTransaction(ctx) {
		return load(ctx)
	}
	return s.cache.ObjectValues(ctx, container, objectURI, load)
}

// GetProperties returns the native values of an object keyed by property URI.
func (s *Store) GetProperties(ctx context.Context, container, objectURI string) (map[string]any, error) {
	m, err := s.GetPropertyObjects(ctx, container, objectURI)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, m.Len())
	for _, cell := range m.Values() {
		out[cell.PropertyURI] = cell.Value
	}
	return out, nil
}

func (s *Store) loadValues(ctx context.Context, container, objectURI string) (*types.PropertyMap, error) {
	rows, err := s.db.Query(ctx,
		`SELECT o.object_id, o.owner_object_id, op.property_id, pd.property_uri, pd.name, pd.range_uri, pd.concept_uri, pd.format,
		        op.type_tag, op.string_value, op.float_value, op.datetime_value, op.mv_indicator
		 FROM object o
		 JOIN object_property op ON op.object_id = o.object_id
		 JOIN property_descriptor pd ON pd.property_id = op.property_id
		 WHERE o.container = ? AND o.object_uri = ?
		 ORDER BY op.property_id`, container, objectURI)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	m := types.NewPropertyMap()
	for rows.Next() {
		var (
			cell                types.ObjectProperty
			owner               sql.NullInt64
			concept, format, mv sql.NullString
			tag                 string
			str                 sql.NullString
			flt                 sql.NullFloat64
			when                sql.NullTime
		)
		if err := rows.Scan(&cell.ObjectID, &owner, &cell.PropertyID, &cell.PropertyURI, &cell.Name, &cell.RangeURI, &concept, &format,
			&tag, &str, &flt, &when, &mv); err != nil {
			return nil, Error.Wrap(err)
		}
		cell.ObjectURI = objectURI
		cell.Container = container
		cell.OwnerObjectID = owner.Int64
		cell.Format = format.String
		cell.MvIndicator = mv.String
		if tag != "" {
			cell.TypeTag = types.StorageTag(tag[0])
		}

		slots := proptype.Slots{Tag: cell.TypeTag}
		if str.Valid {
			v := str.String
			slots.String = &v
		}
		if flt.Valid {
			v := flt.Float64
			slots.Float = &v
		}
		if when.Valid {
			v := when.Time
			slots.DateTime = &v
		}
		cell.StringValue, cell.FloatValue, cell.DateTimeValue = slots.String, slots.Float, slots.DateTime
		pt := proptype.TypeFromURI(concept.String, cell.RangeURI, proptype.Resource)
		cell.Value = proptype.FromStorage(slots, pt)
		m.Set(cell.PropertyURI, &cell)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return applyPropertyOrder(m), nil
}

// SetPropertyOrder records the order in which GetPropertyObjects returns the
// values of an object. Properties not listed follow the listed ones.
func (s *Store) SetPropertyOrder(ctx context.Context, actor types.Actor, container, objectURI string, propertyURIs []string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		ids := make([]string, 0, len(propertyURIs))
		for _, uri := range propertyURIs {
			pd, err := s.descriptors.GetPropertyDescriptor(ctx, uri, container)
			if err != nil {
				return err
			}
			ids = append(ids, strconv.FormatInt(pd.PropertyID, 10))
		}
		order := &types.PropertyDescriptor{
			PropertyURI: types.PropertyOrderURI,
			Name:        types.PropertyNameFromURI(types.PropertyOrderURI),
			RangeURI:    proptype.MultiLine.URI(),
			Container:   container,
			Hidden:      true,
		}
		_, err := s.UpdateObjectProperty(ctx, actor, container, order, objectURI, strings.Join(ids, ","), "", false)
		return err
	})
}
