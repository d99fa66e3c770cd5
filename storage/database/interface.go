// Package database provides the generic key-value storage backends the
// wallet synchronizer's WalletStore implementations are built on, adapted
// from the teacher's blockchain-node key-value layer.
package database

import "github.com/chainwallet/syncer/log"

// DB type identifiers returned by Database.Type.
const (
	LEVELDB  = "leveldb"
	BadgerDB = "badger"
)

var logger = log.NewModuleLogger(log.Storage)

// Database is the generic key-value store both backends satisfy.
type Database interface {
	Type() string
	Path() string
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Close()
	NewBatch() Batch
	Meter(prefix string)
}

// Batch buffers writes for a single atomic commit.
type Batch interface {
	Put(key, value []byte) error
	Write() error
	ValueSize() int
	Reset()
}
