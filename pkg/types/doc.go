// Package types defines the entities, collaborator interfaces, configuration
// and standard errors of the ontology metadata engine.
//
// The engine stores typed values against opaque object URIs. Property and
// domain descriptors describe the shape of those values; containers scope
// where a descriptor is visible.
package types
