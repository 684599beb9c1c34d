package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyDescriptorEqual(t *testing.T) {
	a := &PropertyDescriptor{PropertyID: 7, PropertyURI: "urn:a"}
	b := &PropertyDescriptor{PropertyID: 7, PropertyURI: "urn:b"}
	unsaved := &PropertyDescriptor{PropertyURI: "urn:a"}

	assert.True(t, a.Equal(b), "persisted descriptors compare by id")
	assert.False(t, unsaved.Equal(unsaved), "unpersisted descriptor equals nothing")
	assert.False(t, a.Equal(unsaved))
	assert.False(t, a.Equal(nil))
}

func TestPropertyNameFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"urn:lsid:example.org:Vocabulary:Weight", "Weight"},
		{"http://example.org/schema#Height", "Height"},
		{"urn:lsid:example.org:Run.Folder-3:Run#Date", "Date"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, PropertyNameFromURI(tt.uri))
		})
	}
}

func TestPropertyMapOrder(t *testing.T) {
	m := NewPropertyMap()
	m.Set("b", &ObjectProperty{PropertyURI: "b"})
	m.Set("a", &ObjectProperty{PropertyURI: "a"})
	m.Set("b", &ObjectProperty{PropertyURI: "b", Value: 2})

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	got, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, got.Value)

	c := m.Clone()
	c.Set("c", &ObjectProperty{})
	assert.Equal(t, 2, m.Len(), "clone does not share keys")
}

func TestErrorsMatchSentinels(t *testing.T) {
	var verrs ValidationErrors
	verrs.Add("Weight", "value is required")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid descriptor", &InvalidDescriptorError{Field: "name", Reason: "too long"}, ErrInvalidDescriptor},
		{"domain not found", &DomainNotFoundError{URI: "urn:d", Container: "c"}, ErrDomainNotFound},
		{"optimistic conflict", &OptimisticConflictError{Table: "domain_descriptor", ID: 1}, ErrOptimisticConflict},
		{"conversion", &ConversionError{Property: "p", Type: "int", Value: "x"}, ErrConversion},
		{"validation", verrs.Err(), ErrValidation},
		{"wrapped validation", fmt.Errorf("insert: %w", verrs), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}

	var empty ValidationErrors
	assert.NoError(t, empty.Err())
}

func TestValidationErrorsExposeCauses(t *testing.T) {
	var verrs ValidationErrors
	verrs.Add("Name", "value is required")
	verrs.AddError("Weight", &ConversionError{Property: "Weight", Type: "Double", Value: "heavy"})

	err := verrs.Err()
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrConversion)
	var conv *ConversionError
	require.True(t, errors.As(err, &conv))
	assert.Equal(t, "Weight", conv.Property)
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("x", 150)
	assert.Equal(t, strings.Repeat("x", 100)+"...", Preview(long))
	assert.Equal(t, "short", Preview("short"))
}

func TestMvCodes(t *testing.T) {
	codes := MvCodes(DefaultMvIndicators)
	assert.True(t, codes.Valid("any", "Q"))
	assert.False(t, codes.Valid("any", "X"))
}
