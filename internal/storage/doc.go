// Package storage provides the durable key-value medium and the annotation
// store that keeps the whole annotation collection serialized under a
// single key.
package storage
