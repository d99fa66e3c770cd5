package storage

import (
	gosync "sync"

	"github.com/chainwallet/syncer/storage/database"
)

// memDB is a minimal in-process database.Database, standing in for a real
// LevelDB/Badger instance in tests.
type memDB struct {
	mu   gosync.Mutex
	data map[string][]byte
}

func newMemDB() *memDB {
	return &memDB{data: make(map[string][]byte)}
}

func (m *memDB) Type() string { return "mem" }
func (m *memDB) Path() string { return "" }

func (m *memDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *memDB) Has(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memDB) Close() {}

func (m *memDB) NewBatch() database.Batch { return &memBatch{db: m} }

func (m *memDB) Meter(prefix string) {}

type memBatch struct {
	db  *memDB
	ops []func()
	sz  int
}

func (b *memBatch) Put(key, value []byte) error {
	key, value = append([]byte{}, key...), append([]byte{}, value...)
	b.ops = append(b.ops, func() { _ = b.db.Put(key, value) })
	b.sz += len(value)
	return nil
}

func (b *memBatch) Write() error {
	for _, op := range b.ops {
		op()
	}
	return nil
}

func (b *memBatch) ValueSize() int { return b.sz }

func (b *memBatch) Reset() {
	b.ops = nil
	b.sz = 0
}
