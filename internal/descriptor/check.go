package descriptor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func checkLength(value, field string, max int, hint string) error {
	if n := utf8.RuneCountInString(value); n > max {
		reason := fmt.Sprintf("value is %d characters long, at most %d are allowed", n, max)
		if hint != "" {
			reason += ". " + hint
		}
		return &types.InvalidDescriptorError{Field: field, Reason: reason}
	}
	return nil
}

// ValidatePropertyDescriptor checks pd against the column bounds of the
// schema and the naming rules. It runs before any write.
func ValidatePropertyDescriptor(pd *types.PropertyDescriptor) error {
	if pd.PropertyURI == "" {
		return &types.InvalidDescriptorError{Field: "PropertyURI", Reason: "a property URI is required"}
	}
	name := pd.DisplayName()
	if name == "" {
		return &types.InvalidDescriptorError{Field: "Name", Reason: "a name is required"}
	}

	checks := []struct {
		value, field string
		max          int
		hint         string
	}{
		{name, "Name", db.MaxNameLength, ""},
		{pd.PropertyURI, "PropertyURI", db.MaxURILength, "Please use a shorter field name. Name = " + name},
		{pd.Label, "Label", db.MaxLabelLength, ""},
		{pd.ImportAliases, "ImportAliases", db.MaxImportAliasesLength, ""},
		{pd.URL, "URL", db.MaxURLLength, ""},
		{pd.ConceptURI, "ConceptURI", db.MaxConceptURILength, ""},
		{pd.RangeURI, "RangeURI", db.MaxRangeURILength, ""},
		{pd.Format, "Format", db.MaxFormatLength, ""},
	}
	for _, c := range checks {
		if err := checkLength(c.value, c.field, c.max, c.hint); err != nil {
			return err
		}
	}

	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(types.MvIndicatorSuffix)) {
		return &types.InvalidDescriptorError{
			Field:  "Name",
			Reason: fmt.Sprintf("field name %q may not end with %s", name, types.MvIndicatorSuffix),
		}
	}
	for _, r := range name {
		if unicode.IsSpace(r) && r != ' ' {
			return &types.InvalidDescriptorError{
				Field:  "Name",
				Reason: fmt.Sprintf("field name %q contains whitespace other than a space", name),
			}
		}
	}
	return nil
}

// ValidateDomainDescriptor checks dd against the column bounds of the schema.
func ValidateDomainDescriptor(dd *types.DomainDescriptor) error {
	if dd.DomainURI == "" {
		return &types.InvalidDescriptorError{Field: "DomainURI", Reason: "a domain URI is required"}
	}
	if err := checkLength(dd.DomainURI, "DomainURI", db.MaxURILength, ""); err != nil {
		return err
	}
	return checkLength(dd.Name, "Name", db.MaxNameLength, "")
}
