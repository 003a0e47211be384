// Package kv is the narrow interface to the embedded, ordered key-value stores that anchor
// runs transactions against. Transactions and iterators returned by a DB must only be used
// by the goroutine (and OS thread) which created them.
package kv

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMaxSize is the map size used when Config.MaxSize is zero.
	DefaultMaxSize = 60000000000
	DefaultMode    = os.FileMode(0600)
)

var (
	ErrKeyNotFound = errors.New("kv: key not found")
	ErrReadOnly    = errors.New("kv: transaction is read only")
	ErrMapFull     = errors.New("kv: database exceeds maximum map size")
	ErrTxDone      = errors.New("kv: transaction already completed")
)

// Engines lists the names accepted by Open.
var Engines = []string{"bbolt", "badger", "pebble", "memory"}

type Config struct {
	Path      string
	MaxSize   int64
	CreateDir bool
	Mode      os.FileMode
	Logger    *log.Logger
}

type DB interface {
	Begin(writable bool) (Tx, error)
	Close() error
}

type Tx interface {
	Get(key []byte, fn func(val []byte) error) error
	Set(key, val []byte) error
	// Iterate returns an ascending iterator over the keys in [start, end); a nil end means
	// no upper bound.
	Iterate(start, end []byte) (Iterator, error)
	Commit() error
	Rollback() error
}

type Iterator interface {
	// Item calls fn with the current key and value and then advances; it returns io.EOF
	// once the iterator is exhausted. The slices passed to fn are only valid during the
	// call.
	Item(fn func(key, val []byte) error) error
	Close()
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Mode == 0 {
		cfg.Mode = DefaultMode
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return cfg
}

func prepareDir(cfg Config) error {
	fi, err := os.Stat(cfg.Path)
	if err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("kv: %s: not a directory", cfg.Path)
		}
		return nil
	}
	if !os.IsNotExist(err) || !cfg.CreateDir {
		return fmt.Errorf("kv: %s", err)
	}
	return os.MkdirAll(cfg.Path, 0755)
}

// Open opens the named engine with its data in the directory cfg.Path.
func Open(engine string, cfg Config) (DB, error) {
	cfg = cfg.withDefaults()
	if engine != "memory" {
		err := prepareDir(cfg)
		if err != nil {
			return nil, err
		}
	}

	switch engine {
	case "bbolt", "":
		return OpenBBolt(cfg)
	case "badger":
		return OpenBadger(cfg)
	case "pebble":
		return OpenPebble(cfg)
	case "memory":
		return OpenBTree()
	}
	return nil,
		fmt.Errorf("kv: got %s for engine; want bbolt, badger, pebble, or memory", engine)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
