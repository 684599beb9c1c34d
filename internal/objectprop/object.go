package objectprop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func (s *Store) loadObjectID(ctx context.Context, container, objectURI string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT object_id FROM object WHERE container = ? AND object_uri = ?`,
		container, objectURI).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, Error.Wrap(err)
}

// objectID returns the id of an object, 0 when absent.
func (s *Store) objectID(ctx context.Context, container, objectURI string) (int64, error) {
	load := func(ctx context.Context) (int64, error) {
		return s.loadObjectID(ctx, container, objectURI)
	}
	if s.db.InTransaction(ctx) {
		return load(ctx)
	}
	return s.cache.ObjectID(ctx, container, objectURI, load)
}

// EnsureObject returns the id of the object with objectURI in container,
// creating it when absent. ownerID (0 for none) is set only on creation.
func (s *Store) EnsureObject(ctx context.Context, container, objectURI string, ownerID int64) (int64, error) {
	if objectURI == "" {
		return 0, fmt.Errorf("%w: object URI is empty", types.ErrInvalidLsid)
	}
	if id, err := s.objectID(ctx, container, objectURI); err != nil || id != 0 {
		return id, err
	}

	var id int64
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		newID, outcome, err := s.db.InsertIfAbsent(ctx, "object",
			[]string{"object_uri", "container", "owner_object_id"},
			[]any{objectURI, container, db.NullInt64(ownerID)}, "object_id")
		if err != nil {
			return Error.Wrap(err)
		}
		if outcome == types.AlreadyExists {
			id, err = s.loadObjectID(ctx, container, objectURI)
			return err
		}
		id = newID
		db.AfterCommit(ctx, func() { s.cache.InvalidateObjectIDs(container, objectURI) })
		return nil
	})
	return id, err
}

// GetObject returns the object with objectURI in container.
func (s *Store) GetObject(ctx context.Context, container, objectURI string) (*types.OntologyObject, error) {
	var (
		o     types.OntologyObject
		owner sql.NullInt64
	)
	err := s.db.QueryRow(ctx,
		`SELECT object_id, object_uri, container, owner_object_id FROM object WHERE container = ? AND object_uri = ?`,
		container, objectURI).Scan(&o.ObjectID, &o.ObjectURI, &o.Container, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: object %s", types.ErrNotFound, objectURI)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	o.OwnerObjectID = owner.Int64
	return &o, nil
}

// CheckObjectExistence returns which of uris exist in container, in the
// order given.
func (s *Store) CheckObjectExistence(ctx context.Context, container string, uris []string) ([]string, error) {
	found := make(map[string]bool, len(uris))
	for start := 0; start < len(uris); start += inChunk {
		chunk := uris[start:min(start+inChunk, len(uris))]
		args := append([]any{container}, db.StringArgs(chunk)...)
		rows, err := s.db.Query(ctx,
			`SELECT object_uri FROM object WHERE container = ? AND object_uri IN (`+db.Placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		for rows.Next() {
			var uri string
			if err := rows.Scan(&uri); err != nil {
				_ = rows.Close()
				return nil, Error.Wrap(err)
			}
			found[uri] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	var out []string
	for _, uri := range uris {
		if found[uri] {
			out = append(out, uri)
		}
	}
	return out, nil
}

// objectURIs maps ids in container to their URIs.
func (s *Store) objectURIs(ctx context.Context, container string, ids []int64) ([]string, error) {
	var uris []string
	for _, chunk := range chunkIDs(ids) {
		rows, err := s.db.Query(ctx,
			`SELECT object_uri FROM object WHERE container = ? AND object_id IN (`+db.Placeholders(len(chunk))+`)`,
			append([]any{container}, db.Int64Args(chunk)...)...)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		for rows.Next() {
			var uri string
			if err := rows.Scan(&uri); err != nil {
				_ = rows.Close()
				return nil, Error.Wrap(err)
			}
			uris = append(uris, uri)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	return uris, nil
}

// DeleteObjects removes objects of container and their values, 1000 at a
// time. With deleteOwned the objects they own go first; otherwise owned
// objects are kept and lose their owner.
func (s *Store) DeleteObjects(ctx context.Context, container string, deleteOwned bool, objectIDs ...int64) error {
	if len(objectIDs) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		for _, chunk := range chunkIDs(objectIDs) {
			if err := s.deleteObjectChunk(ctx, container, deleteOwned, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) deleteObjectChunk(ctx context.Context, container string, deleteOwned bool, ids []int64) error {
	in := `(` + db.Placeholders(len(ids)) + `)`
	args := db.Int64Args(ids)

	if deleteOwned {
		owned, err := s.db.QueryInt64s(ctx,
			`SELECT object_id FROM object WHERE container = ? AND owner_object_id IN `+in,
			append([]any{container}, args...)...)
		if err != nil {
			return Error.Wrap(err)
		}
		if len(owned) > 0 {
			if err := s.DeleteObjects(ctx, container, true, owned...); err != nil {
				return err
			}
		}
	} else {
		if _, err := s.db.Exec(ctx, `UPDATE object SET owner_object_id = NULL WHERE owner_object_id IN `+in, args...); err != nil {
			return Error.Wrap(err)
		}
	}

	uris, err := s.objectURIs(ctx, container, ids)
	if err != nil {
		return err
	}
	scoped := append([]any{container}, args...)
	if _, err := s.db.Exec(ctx,
		`DELETE FROM object_property WHERE object_id IN (SELECT object_id FROM object WHERE container = ? AND object_id IN `+in+`)`,
		scoped...); err != nil {
		return Error.Wrap(err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM object WHERE container = ? AND object_id IN `+in, scoped...); err != nil {
		return Error.Wrap(err)
	}

	s.log.Debug("deleted objects", zap.String("container", container), zap.Int("count", len(uris)))
	db.AfterCommit(ctx, func() {
		s.cache.InvalidateObjects(container, uris...)
		s.cache.InvalidateObjectIDs(container, uris...)
	})
	return nil
}

// DeleteObjectsOfType removes the objects of container that hold values for
// any property of the domain, and returns how many were removed.
func (s *Store) DeleteObjectsOfType(ctx context.Context, domainURI, container string) (int, error) {
	var n int
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		dd, err := s.descriptors.GetDomainDescriptor(ctx, domainURI, container)
		if err != nil {
			return err
		}
		ids, err := s.db.QueryInt64s(ctx,
			`SELECT DISTINCT o.object_id FROM object o
			 JOIN object_property op ON op.object_id = o.object_id
			 JOIN property_domain pdm ON pdm.property_id = op.property_id
			 WHERE pdm.domain_id = ? AND o.container = ?
			 ORDER BY o.object_id`, dd.DomainID, container)
		if err != nil {
			return Error.Wrap(err)
		}
		n = len(ids)
		return s.DeleteObjects(ctx, container, true, ids...)
	})
	return n, err
}

// DeleteType removes the objects of a domain in container, then the domain.
func (s *Store) DeleteType(ctx context.Context, domainURI, container string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.DeleteObjectsOfType(ctx, domainURI, container); err != nil {
			return err
		}
		return s.descriptors.DeleteDomain(ctx, domainURI, container)
	})
}

func chunkIDs(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > inChunk {
		out = append(out, ids[:inChunk])
		ids = ids[inChunk:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
