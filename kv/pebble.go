package kv

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
)

type pebbleDB struct {
	mutex sync.Mutex
	db    *pebble.DB
}

// Write transactions accumulate in an indexed batch; read transactions see a snapshot.
type pebbleTx struct {
	pdb   *pebbleDB
	batch *pebble.Batch
	snap  *pebble.Snapshot
	done  bool
}

type pebbleIterator struct {
	it    *pebble.Iterator
	first bool
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) *pebble.Iterator
}

func OpenPebble(cfg Config) (DB, error) {
	cfg = cfg.withDefaults()

	db, err := pebble.Open(cfg.Path, &pebble.Options{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &pebbleDB{
		db: db,
	}, nil
}

func (pdb *pebbleDB) Begin(writable bool) (Tx, error) {
	if writable {
		pdb.mutex.Lock()
		return &pebbleTx{
			pdb:   pdb,
			batch: pdb.db.NewIndexedBatch(),
		}, nil
	}

	return &pebbleTx{
		pdb:  pdb,
		snap: pdb.db.NewSnapshot(),
	}, nil
}

func (pdb *pebbleDB) Close() error {
	return pdb.db.Close()
}

func (ptx *pebbleTx) reader() pebbleReader {
	if ptx.batch != nil {
		return ptx.batch
	}
	return ptx.snap
}

func (ptx *pebbleTx) Get(key []byte, fn func(val []byte) error) error {
	val, closer, err := ptx.reader().Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrKeyNotFound
		}
		return err
	}
	defer closer.Close()

	return fn(val)
}

func (ptx *pebbleTx) Set(key, val []byte) error {
	if ptx.batch == nil {
		return ErrReadOnly
	}
	return ptx.batch.Set(key, val, nil)
}

func (ptx *pebbleTx) Iterate(start, end []byte) (Iterator, error) {
	if end != nil && bytes.Compare(start, end) >= 0 {
		return &pebbleIterator{}, nil
	}

	it := ptx.reader().NewIter(
		&pebble.IterOptions{
			LowerBound: copyBytes(start),
			UpperBound: copyBytes(end),
		})
	return &pebbleIterator{
		it:    it,
		first: true,
	}, nil
}

func (ptx *pebbleTx) Commit() error {
	if ptx.done {
		return ErrTxDone
	}
	if ptx.batch == nil {
		return ptx.Rollback()
	}

	ptx.done = true
	err := ptx.batch.Commit(pebble.Sync)
	ptx.batch.Close()
	ptx.pdb.mutex.Unlock()
	return err
}

func (ptx *pebbleTx) Rollback() error {
	if ptx.done {
		return ErrTxDone
	}
	ptx.done = true

	if ptx.batch != nil {
		err := ptx.batch.Close()
		ptx.pdb.mutex.Unlock()
		return err
	}
	return ptx.snap.Close()
}

func (pit *pebbleIterator) Item(fn func(key, val []byte) error) error {
	if pit.it == nil {
		return io.EOF
	}

	var valid bool
	if pit.first {
		valid = pit.it.First()
		pit.first = false
	} else {
		valid = pit.it.Valid()
	}
	if !valid {
		return io.EOF
	}

	err := fn(pit.it.Key(), pit.it.Value())
	if err != nil {
		return err
	}

	pit.it.Next()
	return nil
}

func (pit *pebbleIterator) Close() {
	if pit.it != nil {
		pit.it.Close()
		pit.it = nil
	}
}
