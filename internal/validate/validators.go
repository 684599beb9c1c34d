package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// FromDefs builds validators from their stored definitions.
func FromDefs(defs []types.ValidatorDef) ([]Validator, error) {
	out := make([]Validator, 0, len(defs))
	for _, def := range defs {
		v, err := FromDef(def)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FromDef builds one validator.
func FromDef(def types.ValidatorDef) (Validator, error) {
	switch def.Kind {
	case types.ValidatorRegex:
		re, err := regexp.Compile(def.Expression)
		if err != nil {
			return nil, &types.InvalidDescriptorError{Field: "validator", Reason: fmt.Sprintf("bad pattern %q: %v", def.Expression, err)}
		}
		return &Regex{Pattern: re, Message: def.Message}, nil
	case types.ValidatorRange:
		r, err := ParseRange(def.Expression)
		if err != nil {
			return nil, err
		}
		r.Message = def.Message
		return r, nil
	case types.ValidatorLookup:
		return &LookupMembership{Message: def.Message}, nil
	default:
		return nil, &types.InvalidDescriptorError{Field: "validator", Reason: fmt.Sprintf("unknown kind %q", def.Kind)}
	}
}

// Regex fails values whose text does not match Pattern.
type Regex struct {
	Pattern *regexp.Regexp
	Message string
}

func (r *Regex) Kind() string { return types.ValidatorRegex }

func (r *Regex) Validate(_ *Context, field string, value any, errs *types.ValidationErrors) bool {
	s := proptype.FormatValue(value)
	if r.Pattern.MatchString(s) {
		return true
	}
	msg := r.Message
	if msg == "" {
		msg = fmt.Sprintf("value '%s' does not match the pattern %s", types.Preview(s), r.Pattern)
	}
	errs.Add(field, "%s", msg)
	return false
}

// Range bounds numeric values. Bounds left nil are not checked.
type Range struct {
	Min, Max         *float64
	MinExcl, MaxExcl bool
	Message          string
}

// ParseRange reads an expression such as "~gte=1&~lt=10".
func ParseRange(expr string) (*Range, error) {
	q, err := url.ParseQuery(expr)
	if err != nil {
		return nil, &types.InvalidDescriptorError{Field: "validator", Reason: fmt.Sprintf("bad range %q", expr)}
	}
	r := &Range{}
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		f, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return nil, &types.InvalidDescriptorError{Field: "validator", Reason: fmt.Sprintf("bad range bound %q", vals[0])}
		}
		switch key {
		case "~gt":
			r.Min, r.MinExcl = &f, true
		case "~gte":
			r.Min = &f
		case "~lt":
			r.Max, r.MaxExcl = &f, true
		case "~lte":
			r.Max = &f
		case "~eq":
			r.Min, r.Max = &f, &f
		default:
			return nil, &types.InvalidDescriptorError{Field: "validator", Reason: fmt.Sprintf("unknown range operator %q", key)}
		}
	}
	return r, nil
}

func (r *Range) Kind() string { return types.ValidatorRange }

func (r *Range) Validate(_ *Context, field string, value any, errs *types.ValidationErrors) bool {
	v, err := proptype.Convert(value, proptype.Double)
	if err != nil || v == nil {
		errs.Add(field, "value '%s' is not a number", types.Preview(proptype.FormatValue(value)))
		return false
	}
	f := v.(float64)
	ok := true
	if r.Min != nil && (f < *r.Min || (r.MinExcl && f == *r.Min)) {
		ok = false
	}
	if r.Max != nil && (f > *r.Max || (r.MaxExcl && f == *r.Max)) {
		ok = false
	}
	if ok {
		return true
	}
	msg := r.Message
	if msg == "" {
		msg = fmt.Sprintf("value %s is out of range", strconv.FormatFloat(f, 'g', -1, 64))
	}
	errs.Add(field, "%s", msg)
	return false
}

// LookupMembership requires the value to exist in the property's lookup
// target. Context.ValidatorsFor fills Lookup from the descriptor.
type LookupMembership struct {
	Lookup  types.Lookup
	Message string
}

func (l *LookupMembership) Kind() string { return types.ValidatorLookup }

func (l *LookupMembership) Validate(vctx *Context, field string, value any, errs *types.ValidationErrors) bool {
	if vctx == nil || vctx.Lookups == nil || l.Lookup.IsZero() {
		return true
	}
	container := l.Lookup.Container
	if container == "" {
		container = vctx.Container
	}
	ok, err := vctx.Lookups.Contains(vctx.Ctx, l.Lookup, container, value)
	if err != nil {
		errs.Add(field, "lookup check failed: %v", err)
		return false
	}
	if ok {
		return true
	}
	msg := l.Message
	if msg == "" {
		msg = fmt.Sprintf("value '%s' was not present in %s.%s", types.Preview(proptype.FormatValue(value)), l.Lookup.Schema, l.Lookup.Query)
	}
	errs.Add(field, "%s", msg)
	return false
}
