package kv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const (
	bboltFile = "anchor.bbolt"
)

var (
	defaultBucket = []byte("default")
)

const (
	maxInt = int64(^uint(0) >> 1)
)

type bboltDB struct {
	db      *bbolt.DB
	maxSize int64
}

type bboltTx struct {
	tx      *bbolt.Tx
	bkt     *bbolt.Bucket
	maxSize int64
	done    bool
}

type bboltIterator struct {
	cr    *bbolt.Cursor
	start []byte
	end   []byte
	next  bool
}

// OpenBBolt opens (creating if necessary) a bbolt database in cfg.Path and makes sure the
// default bucket exists.
func OpenBBolt(cfg Config) (DB, error) {
	cfg = cfg.withDefaults()
	db, err := bbolt.Open(filepath.Join(cfg.Path, bboltFile), cfg.Mode,
		&bbolt.Options{
			InitialMmapSize: mmapSize(cfg.MaxSize),
		})
	if err != nil {
		return nil, fmt.Errorf("bbolt: open failed: %s", err)
	}

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(defaultBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt: default bucket: %s", err)
	}

	return &bboltDB{
		db:      db,
		maxSize: cfg.MaxSize,
	}, nil
}

// mmapSize is the initial mapping for a database of at most maxSize bytes; it is limited to
// what an int holds. The map size itself is still enforced on commit.
func mmapSize(maxSize int64) int {
	if maxSize > maxInt {
		return int(maxInt)
	}
	return int(maxSize)
}

func (bdb *bboltDB) Begin(writable bool) (Tx, error) {
	tx, err := bdb.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(defaultBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errors.New("bbolt: missing default bucket")
	}
	return &bboltTx{
		tx:      tx,
		bkt:     bkt,
		maxSize: bdb.maxSize,
	}, nil
}

func (bdb *bboltDB) Close() error {
	return bdb.db.Close()
}

func (btx *bboltTx) Get(key []byte, fn func(val []byte) error) error {
	val := btx.bkt.Get(key)
	if val == nil {
		return ErrKeyNotFound
	}
	return fn(val)
}

func (btx *bboltTx) Set(key, val []byte) error {
	if !btx.tx.Writable() {
		return ErrReadOnly
	}
	return btx.bkt.Put(key, val)
}

func (btx *bboltTx) Iterate(start, end []byte) (Iterator, error) {
	return &bboltIterator{
		cr:    btx.bkt.Cursor(),
		start: copyBytes(start),
		end:   copyBytes(end),
	}, nil
}

// Commit refuses to commit once the database, as seen by this transaction, has grown past
// the maximum map size.
func (btx *bboltTx) Commit() error {
	if btx.done {
		return ErrTxDone
	}
	if !btx.tx.Writable() {
		return btx.Rollback()
	}

	btx.done = true
	if btx.tx.Size() > btx.maxSize {
		btx.tx.Rollback()
		return ErrMapFull
	}
	return btx.tx.Commit()
}

func (btx *bboltTx) Rollback() error {
	if btx.done {
		return ErrTxDone
	}
	btx.done = true
	return btx.tx.Rollback()
}

func (bit *bboltIterator) Item(fn func(key, val []byte) error) error {
	if bit.cr == nil {
		return io.EOF
	}

	var key, val []byte
	if bit.next {
		key, val = bit.cr.Next()
	} else {
		key, val = bit.cr.Seek(bit.start)
		bit.next = true
	}

	if key == nil || (bit.end != nil && bytes.Compare(key, bit.end) >= 0) {
		bit.cr = nil
		return io.EOF
	}
	return fn(key, val)
}

func (bit *bboltIterator) Close() {
	bit.cr = nil
}
