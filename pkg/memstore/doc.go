// Package memstore is an in-process implementation of repository.Client.
//
// Store keeps documents in maps guarded by a mutex, assigns uuid ids when none
// is given, versions every write and understands a small subset of the search
// DSL (match_all, term, terms, match, ids, exists, range and bool with from and
// size). A Filter function can be used as a Go-native query instead.
//
// It is meant for tests and local development:
//
//	store := memstore.New()
//	notes := repository.New[repository.Source](repository.Options{
//	    Client:    store,
//	    IndexName: "notes",
//	})
//
// Store counts calls per operation (Calls), which lets tests assert how many
// requests a repository issued.
package memstore
