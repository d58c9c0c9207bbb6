// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	writeOpt = &opt.WriteOptions{}
	readOpt  = &opt.ReadOptions{}
)

// Options options for creating a level db instance.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

type levelDB struct {
	db *leveldb.DB
}

// New opens a persistent level db at the given path.
func New(path string, opts Options) (GetPutCloser, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open level db file storage")
	}
	db, err := openLevelDB(stg, opts)
	if err != nil {
		stg.Close()
		return nil, err
	}
	return db, nil
}

// NewMem creates a level db backed by memory storage. Mostly for tests.
func NewMem() GetPutCloser {
	db, err := openLevelDB(storage.NewMemStorage(), Options{})
	if err != nil {
		panic(errors.Wrap(err, "open in-memory level db"))
	}
	return db
}

func openLevelDB(stg storage.Storage, opts Options) (*levelDB, error) {
	if opts.CacheSize < 128 {
		opts.CacheSize = 128
	}
	if opts.OpenFilesCacheCapacity < 64 {
		opts.OpenFilesCacheCapacity = 64
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		BlockCacheCapacity:     opts.CacheSize / 2 * opt.MiB,
		WriteBuffer:            opts.CacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &levelDB{db: db}, nil
}

func (ldb *levelDB) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, readOpt)
}

func (ldb *levelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, readOpt)
}

func (ldb *levelDB) IsNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}

func (ldb *levelDB) Put(key, value []byte) error {
	return ldb.db.Put(key, value, writeOpt)
}

func (ldb *levelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, writeOpt)
}

func (ldb *levelDB) Close() error {
	return ldb.db.Close()
}

func (ldb *levelDB) NewBatch() Batch {
	return &levelDBBatch{
		ldb.db,
		&leveldb.Batch{},
	}
}

func (ldb *levelDB) NewIterator(r Range) Iterator {
	return ldb.db.NewIterator(&util.Range{
		Start: r.Start,
		Limit: r.Limit,
	}, readOpt)
}

type levelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelDBBatch) NewBatch() Batch {
	return &levelDBBatch{
		b.db,
		&leveldb.Batch{},
	}
}

func (b *levelDBBatch) Len() int {
	return b.batch.Len()
}

func (b *levelDBBatch) Write() error {
	return b.db.Write(b.batch, writeOpt)
}
