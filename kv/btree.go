package kv

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/btree"
)

type btreeDB struct {
	treeMutex   sync.Mutex
	updateMutex sync.Mutex
	tree        *btree.BTree
}

// Every transaction works on a copy-on-write clone of the tree; commit swaps the clone in.
type btreeTx struct {
	bdb      *btreeDB
	tree     *btree.BTree
	writable bool
	done     bool
}

type btreeIterator struct {
	tree *btree.BTree
	next []byte
	end  []byte
}

type btreeItem struct {
	key []byte
	val []byte
}

func (bi btreeItem) Less(item btree.Item) bool {
	return bytes.Compare(bi.key, item.(btreeItem).key) < 0
}

// OpenBTree returns an in memory engine; nothing is persisted.
func OpenBTree() (DB, error) {
	return &btreeDB{
		tree: btree.New(16),
	}, nil
}

func (bdb *btreeDB) Begin(writable bool) (Tx, error) {
	if writable {
		bdb.updateMutex.Lock()
	}

	bdb.treeMutex.Lock()
	tree := bdb.tree.Clone()
	bdb.treeMutex.Unlock()

	return &btreeTx{
		bdb:      bdb,
		tree:     tree,
		writable: writable,
	}, nil
}

func (bdb *btreeDB) Close() error {
	return nil
}

func (btx *btreeTx) Get(key []byte, fn func(val []byte) error) error {
	item := btx.tree.Get(btreeItem{key: key})
	if item == nil {
		return ErrKeyNotFound
	}
	return fn(item.(btreeItem).val)
}

func (btx *btreeTx) Set(key, val []byte) error {
	if !btx.writable {
		return ErrReadOnly
	}
	btx.tree.ReplaceOrInsert(btreeItem{key: copyBytes(key), val: copyBytes(val)})
	return nil
}

func (btx *btreeTx) Iterate(start, end []byte) (Iterator, error) {
	next := copyBytes(start)
	if next == nil {
		next = []byte{}
	}
	return &btreeIterator{
		tree: btx.tree,
		next: next,
		end:  copyBytes(end),
	}, nil
}

func (btx *btreeTx) Commit() error {
	if btx.done {
		return ErrTxDone
	}
	if !btx.writable {
		return btx.Rollback()
	}
	btx.done = true

	btx.bdb.treeMutex.Lock()
	btx.bdb.tree = btx.tree
	btx.bdb.treeMutex.Unlock()

	btx.bdb.updateMutex.Unlock()
	return nil
}

func (btx *btreeTx) Rollback() error {
	if btx.done {
		return ErrTxDone
	}
	btx.done = true

	if btx.writable {
		btx.bdb.updateMutex.Unlock()
	}
	return nil
}

func (bit *btreeIterator) Item(fn func(key, val []byte) error) error {
	if bit.tree == nil {
		return io.EOF
	}

	var found *btreeItem
	bit.tree.AscendGreaterOrEqual(btreeItem{key: bit.next},
		func(item btree.Item) bool {
			bi := item.(btreeItem)
			found = &bi
			return false
		})
	if found == nil || (bit.end != nil && bytes.Compare(found.key, bit.end) >= 0) {
		bit.tree = nil
		return io.EOF
	}

	// The smallest key greater than found.key.
	bit.next = append(copyBytes(found.key), 0)
	return fn(found.key, found.val)
}

func (bit *btreeIterator) Close() {
	bit.tree = nil
}
