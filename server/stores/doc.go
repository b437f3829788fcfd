// Package stores holds the memory, bolt and datastore implementations of the
// server storage interfaces, and the redis run guard.
package stores
