package objectprop

import (
	"strconv"
	"strings"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// applyPropertyOrder reorders m by the property ids listed in its
// PropertyOrder cell and drops that cell. Unlisted properties follow in
// their original relative order; listed ids with no value are skipped.
func applyPropertyOrder(m *types.PropertyMap) *types.PropertyMap {
	orderCell, ok := m.Get(types.PropertyOrderURI)
	if !ok {
		return m
	}

	byID := make(map[int64]string, m.Len())
	for _, cell := range m.Values() {
		byID[cell.PropertyID] = cell.PropertyURI
	}

	out := types.NewPropertyMap()
	placed := map[string]bool{types.PropertyOrderURI: true}
	if orderCell.StringValue != nil {
		for _, part := range strings.Split(*orderCell.StringValue, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				continue
			}
			uri, ok := byID[id]
			if !ok || placed[uri] {
				continue
			}
			cell, _ := m.Get(uri)
			out.Set(uri, cell)
			placed[uri] = true
		}
	}
	for _, uri := range m.Keys() {
		if placed[uri] {
			continue
		}
		cell, _ := m.Get(uri)
		out.Set(uri, cell)
	}
	return out
}
