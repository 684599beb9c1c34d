package descriptor

import (
	"context"
	"database/sql"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// inChunk bounds the size of IN lists.
const inChunk = 1000

func chunks(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func (s *Store) attachValidators(ctx context.Context, pds []*types.PropertyDescriptor) error {
	if len(pds) == 0 {
		return nil
	}
	byID := make(map[int64]*types.PropertyDescriptor, len(pds))
	ids := make([]int64, 0, len(pds))
	for _, pd := range pds {
		if _, seen := byID[pd.PropertyID]; !seen {
			ids = append(ids, pd.PropertyID)
		}
		byID[pd.PropertyID] = pd
	}

	for _, chunk := range chunks(ids, inChunk) {
		rows, err := s.db.Query(ctx,
			`SELECT property_id, kind, expression, message FROM property_validator
			 WHERE property_id IN (`+db.Placeholders(len(chunk))+`) ORDER BY validator_id`,
			db.Int64Args(chunk)...)
		if err != nil {
			return Error.Wrap(err)
		}
		for rows.Next() {
			var (
				id                  int64
				def                 types.ValidatorDef
				expression, message sql.NullString
			)
			if err := rows.Scan(&id, &def.Kind, &expression, &message); err != nil {
				_ = rows.Close()
				return Error.Wrap(err)
			}
			def.Expression = expression.String
			def.Message = message.String
			pd := byID[id]
			pd.Validators = append(pd.Validators, def)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// saveValidators replaces the stored validators of pd.
func (s *Store) saveValidators(ctx context.Context, pd *types.PropertyDescriptor) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM property_validator WHERE property_id = ?`, pd.PropertyID); err != nil {
		return Error.Wrap(err)
	}
	for _, v := range pd.Validators {
		_, err := s.db.Exec(ctx,
			`INSERT INTO property_validator (property_id, kind, expression, message) VALUES (?, ?, ?, ?)`,
			pd.PropertyID, v.Kind, db.NullString(v.Expression), db.NullString(v.Message))
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func sameValidators(a, b []types.ValidatorDef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
