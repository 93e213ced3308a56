// Package store maps records onto their relational rows and implements the
// natural-key upsert decision shared by every storage backend. This package
// must not import database drivers or concrete clients.
package store
