package validate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

type countingValidator struct{ calls int }

func (c *countingValidator) Kind() string { return "counting" }

func (c *countingValidator) Validate(_ *Context, _ string, _ any, _ *types.ValidationErrors) bool {
	c.calls++
	return true
}

func TestRequiredValueMissing(t *testing.T) {
	pd := &types.PropertyDescriptor{Name: "Weight", RangeURI: proptype.Double.URI(), Required: true}
	custom := &countingValidator{}
	var errs types.ValidationErrors

	ok := Validate([]Validator{custom}, pd, &types.ObjectProperty{}, &errs, nil)

	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "Weight", errs[0].Property)
	assert.Zero(t, custom.calls, "custom validators never see a null value")
	assert.ErrorIs(t, errs.Err(), types.ErrValidation)
}

func TestRequiredSatisfiedByMissingValueIndicator(t *testing.T) {
	pd := &types.PropertyDescriptor{Name: "Weight", RangeURI: proptype.Double.URI(), Required: true, MvEnabled: true}
	var errs types.ValidationErrors
	assert.True(t, Validate(nil, pd, &types.ObjectProperty{MvIndicator: "Q"}, &errs, nil))
	assert.Empty(t, errs)
}

func TestStringTooLongPreviewsValue(t *testing.T) {
	pd := &types.PropertyDescriptor{Name: "Code", Label: "Sample Code", RangeURI: proptype.String.URI(), Scale: 10}
	long := strings.Repeat("x", 150)
	var errs types.ValidationErrors

	ok := Validate(nil, pd, &types.ObjectProperty{Value: long}, &errs, nil)

	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Sample Code")
	assert.Contains(t, errs[0].Message, "10")
	assert.Contains(t, errs[0].Message, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, errs[0].Message, strings.Repeat("x", 101))
}

func TestLengthCheckIgnoresNonStringTypes(t *testing.T) {
	pd := &types.PropertyDescriptor{Name: "N", RangeURI: proptype.Double.URI(), Scale: 1}
	var errs types.ValidationErrors
	assert.True(t, Validate(nil, pd, &types.ObjectProperty{Value: 123456.5}, &errs, nil))
}

func TestAllFailuresReported(t *testing.T) {
	pd := &types.PropertyDescriptor{Name: "Code", RangeURI: proptype.String.URI(), Scale: 3}
	re, err := FromDef(types.ValidatorDef{Kind: types.ValidatorRegex, Expression: `^[0-9]+$`, Message: "digits only"})
	require.NoError(t, err)
	var errs types.ValidationErrors

	ok := Validate([]Validator{re}, pd, &types.ObjectProperty{Value: "abcdef"}, &errs, nil)

	assert.False(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "digits only", errs[1].Message)
}

func TestRange(t *testing.T) {
	r, err := ParseRange("~gte=1&~lt=10")
	require.NoError(t, err)

	tests := []struct {
		value any
		ok    bool
	}{
		{int64(1), true},
		{9.99, true},
		{10.0, false},
		{0.5, false},
		{"nope", false},
	}
	for _, tt := range tests {
		var errs types.ValidationErrors
		assert.Equal(t, tt.ok, r.Validate(nil, "n", tt.value, &errs), "value %v", tt.value)
		assert.Equal(t, !tt.ok, len(errs) == 1)
	}
}

func TestParseRangeRejectsUnknownOperator(t *testing.T) {
	_, err := ParseRange("~between=1")
	assert.ErrorIs(t, err, types.ErrInvalidDescriptor)
}

func TestFromDefRejectsBadPattern(t *testing.T) {
	_, err := FromDef(types.ValidatorDef{Kind: types.ValidatorRegex, Expression: "("})
	assert.ErrorIs(t, err, types.ErrInvalidDescriptor)

	_, err = FromDef(types.ValidatorDef{Kind: "script"})
	assert.ErrorIs(t, err, types.ErrInvalidDescriptor)
}

type fixedLookup map[any]bool

func (f fixedLookup) Contains(_ context.Context, _ types.Lookup, _ string, value any) (bool, error) {
	return f[value], nil
}

func TestLookupValidatorBoundFromDescriptor(t *testing.T) {
	pd := &types.PropertyDescriptor{
		PropertyID: 5,
		Name:       "Site",
		RangeURI:   proptype.String.URI(),
		Lookup:     types.Lookup{Schema: "lists", Query: "Sites"},
		Validators: []types.ValidatorDef{{Kind: types.ValidatorLookup}},
	}
	vctx := NewContext(context.Background(), "c1", types.System, fixedLookup{"Boston": true})

	vs, err := vctx.ValidatorsFor(pd)
	require.NoError(t, err)
	again, err := vctx.ValidatorsFor(pd)
	require.NoError(t, err)
	assert.Same(t, vs[0], again[0], "validators are built once per property")

	var errs types.ValidationErrors
	assert.True(t, Validate(vs, pd, &types.ObjectProperty{Value: "Boston"}, &errs, vctx))
	assert.False(t, Validate(vs, pd, &types.ObjectProperty{Value: "Denver"}, &errs, vctx))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "lists.Sites")
}
