package storage

import (
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelKV adapts a goleveldb handle to the ethdb.KeyValueStore surface so the
// same file can back both raw metadata access and the trie database.
type levelKV struct {
	db *leveldb.DB
}

func newLevelKV(path string) (*levelKV, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 64,
	})
	if err != nil {
		return nil, err
	}
	return &levelKV{db: db}, nil
}

func (k *levelKV) Has(key []byte) (bool, error) {
	return k.db.Has(key, nil)
}

func (k *levelKV) Get(key []byte) ([]byte, error) {
	return k.db.Get(key, nil)
}

func (k *levelKV) Put(key []byte, value []byte) error {
	return k.db.Put(key, value, nil)
}

func (k *levelKV) Delete(key []byte) error {
	return k.db.Delete(key, nil)
}

// DeleteRange removes every key in [start, end). goleveldb has no native
// range deletion, so the range is swept with an iterator.
func (k *levelKV) DeleteRange(start, end []byte) error {
	it := k.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer it.Release()
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	return k.db.Write(batch, nil)
}

func (k *levelKV) SyncKeyValue() error {
	// goleveldb flushes its journal on write; an explicit barrier is an
	// empty synced transaction.
	return k.db.Put([]byte("memberchain/sync"), nil, &opt.WriteOptions{Sync: true})
}

func (k *levelKV) Stat() (string, error) {
	return k.db.GetProperty("leveldb.stats")
}

func (k *levelKV) Compact(start []byte, limit []byte) error {
	return k.db.CompactRange(util.Range{Start: start, Limit: limit})
}

func (k *levelKV) NewBatch() ethdb.Batch {
	return &levelBatch{db: k.db, b: new(leveldb.Batch)}
}

func (k *levelKV) NewBatchWithSize(size int) ethdb.Batch {
	return &levelBatch{db: k.db, b: leveldb.MakeBatch(size)}
}

func (k *levelKV) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	return k.db.NewIterator(bytesPrefixRange(prefix, start), nil)
}

func (k *levelKV) Close() error {
	return k.db.Close()
}

// bytesPrefixRange returns the key range that satisfies the given prefix and
// starts at the given seek position within it.
func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(r.Start, start...)
	return r
}

// levelBatch buffers writes until flushed against the underlying store.
type levelBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *levelBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelBatch) DeleteRange(start, end []byte) error {
	it := b.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		b.b.Delete(key)
		b.size += len(key)
	}
	return it.Error()
}

func (b *levelBatch) ValueSize() int {
	return b.size
}

func (b *levelBatch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *levelBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *levelBatch) Replay(w ethdb.KeyValueWriter) error {
	replay := &batchReplay{writer: w}
	if err := b.b.Replay(replay); err != nil {
		return err
	}
	return replay.failure
}

// batchReplay forwards batched operations to an arbitrary writer.
type batchReplay struct {
	writer  ethdb.KeyValueWriter
	failure error
}

func (r *batchReplay) Put(key, value []byte) {
	if r.failure != nil {
		return
	}
	r.failure = r.writer.Put(key, value)
}

func (r *batchReplay) Delete(key []byte) {
	if r.failure != nil {
		return
	}
	r.failure = r.writer.Delete(key)
}
