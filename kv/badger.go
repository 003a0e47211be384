package kv

import (
	"bytes"
	"io"
	"sync"

	"github.com/dgraph-io/badger"
)

type badgerDB struct {
	mutex sync.Mutex
	db    *badger.DB
}

type badgerTx struct {
	bdb      *badgerDB
	tx       *badger.Txn
	writable bool
	done     bool
}

type badgerIterator struct {
	it  *badger.Iterator
	end []byte
}

// OpenBadger opens a badger database in cfg.Path. Badger allows concurrent writers, so
// write transactions are serialized here to match the single writer model of the other
// engines.
func OpenBadger(cfg Config) (DB, error) {
	cfg = cfg.withDefaults()

	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithLogger(cfg.Logger)
	opts = opts.WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerDB{
		db: db,
	}, nil
}

func (bdb *badgerDB) Begin(writable bool) (Tx, error) {
	if writable {
		bdb.mutex.Lock()
	}
	return &badgerTx{
		bdb:      bdb,
		tx:       bdb.db.NewTransaction(writable),
		writable: writable,
	}, nil
}

func (bdb *badgerDB) Close() error {
	return bdb.db.Close()
}

func (btx *badgerTx) Get(key []byte, fn func(val []byte) error) error {
	item, err := btx.tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		return err
	}
	return item.Value(fn)
}

func (btx *badgerTx) Set(key, val []byte) error {
	if !btx.writable {
		return ErrReadOnly
	}
	return btx.tx.Set(copyBytes(key), copyBytes(val))
}

func (btx *badgerTx) Iterate(start, end []byte) (Iterator, error) {
	it := btx.tx.NewIterator(badger.DefaultIteratorOptions)
	it.Seek(start)

	return &badgerIterator{
		it:  it,
		end: copyBytes(end),
	}, nil
}

func (btx *badgerTx) finish() {
	btx.done = true
	if btx.writable {
		btx.bdb.mutex.Unlock()
	}
}

func (btx *badgerTx) Commit() error {
	if btx.done {
		return ErrTxDone
	}
	if !btx.writable {
		return btx.Rollback()
	}

	err := btx.tx.Commit()
	btx.finish()
	return err
}

func (btx *badgerTx) Rollback() error {
	if btx.done {
		return ErrTxDone
	}
	btx.tx.Discard()
	btx.finish()
	return nil
}

func (bit *badgerIterator) Item(fn func(key, val []byte) error) error {
	if bit.it == nil || !bit.it.Valid() {
		return io.EOF
	}

	item := bit.it.Item()
	key := item.Key()
	if bit.end != nil && bytes.Compare(key, bit.end) >= 0 {
		return io.EOF
	}
	err := item.Value(
		func(val []byte) error {
			return fn(key, val)
		})
	if err != nil {
		return err
	}

	bit.it.Next()
	return nil
}

func (bit *badgerIterator) Close() {
	if bit.it != nil {
		bit.it.Close()
		bit.it = nil
	}
}
