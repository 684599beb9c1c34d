// Package validate checks property values before they are stored. All
// applicable checks run so every failure is reported together.
package validate

import (
	"context"
	"unicode/utf8"

	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// LookupResolver answers lookup-membership questions for lookup validators.
type LookupResolver interface {
	Contains(ctx context.Context, lookup types.Lookup, container string, value any) (bool, error)
}

// Validator is a custom check attached to a property. It is never called
// with a nil value.
type Validator interface {
	Kind() string
	Validate(vctx *Context, field string, value any, errs *types.ValidationErrors) bool
}

// Context carries what custom validators need and memoizes the validators
// built for each property during one batch.
type Context struct {
	Ctx       context.Context
	Container string
	Actor     types.Actor
	Lookups   LookupResolver

	built map[int64][]Validator
}

// NewContext returns a validator context for one batch.
func NewContext(ctx context.Context, container string, actor types.Actor, lookups LookupResolver) *Context {
	return &Context{Ctx: ctx, Container: container, Actor: actor, Lookups: lookups, built: make(map[int64][]Validator)}
}

// ValidatorsFor builds, once per property id, the validators stored with pd.
func (c *Context) ValidatorsFor(pd *types.PropertyDescriptor) ([]Validator, error) {
	if c.built == nil {
		c.built = make(map[int64][]Validator)
	}
	if vs, ok := c.built[pd.PropertyID]; ok && pd.PropertyID != 0 {
		return vs, nil
	}
	vs, err := FromDefs(pd.Validators)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		if l, ok := v.(*LookupMembership); ok {
			l.Lookup = pd.Lookup
		}
	}
	if pd.PropertyID != 0 {
		c.built[pd.PropertyID] = vs
	}
	return vs, nil
}

// Validate runs, in order, the required check, the string-length check and
// every custom validator against cell, appending failures to errs. It
// returns true when this call appended nothing.
func Validate(validators []Validator, pd *types.PropertyDescriptor, cell *types.ObjectProperty, errs *types.ValidationErrors, vctx *Context) bool {
	before := len(*errs)
	label := fieldLabel(pd)
	value := cell.Value

	if pd.Required && value == nil && cell.MvIndicator == "" {
		errs.Add(label, "value is required")
	}

	if value != nil {
		pt := proptype.Of(pd)
		if pt.IsStringFamily() {
			s := proptype.FormatValue(value)
			if scale := proptype.ScaleFor(pd); utf8.RuneCountInString(s) > scale {
				errs.Add(label, "value is too long for field %s, a maximum length of %d is allowed. The value was: %s",
					label, scale, types.Preview(s))
			}
		}
		for _, v := range validators {
			v.Validate(vctx, label, value, errs)
		}
	}

	return len(*errs) == before
}

func fieldLabel(pd *types.PropertyDescriptor) string {
	if pd.Label != "" {
		return pd.Label
	}
	return pd.DisplayName()
}
