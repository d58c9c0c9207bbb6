// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "bytes"

// Bucket provides a logical bucket for a kv store.
type Bucket string

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &bucketGetter{string(b), src}
}

// NewPutter creates a bucket putter from the source putter.
func (b Bucket) NewPutter(src Putter) Putter {
	return &bucketPutter{string(b), src}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src GetPutter) GetPutter {
	return &struct {
		Getter
		Putter
	}{
		b.NewGetter(src),
		b.NewPutter(src),
	}
}

type bucketGetter struct {
	prefix string
	src    Getter
}

func (g *bucketGetter) Get(key []byte) ([]byte, error) {
	return g.src.Get(append([]byte(g.prefix), key...))
}

func (g *bucketGetter) Has(key []byte) (bool, error) {
	return g.src.Has(append([]byte(g.prefix), key...))
}

func (g *bucketGetter) IsNotFound(err error) bool {
	return g.src.IsNotFound(err)
}

func (g *bucketGetter) NewIterator(r Range) Iterator {
	prefix := []byte(g.prefix)
	bucketRange := Range{
		Start: append(prefix, r.Start...),
	}
	if len(r.Limit) > 0 {
		bucketRange.Limit = append(prefix, r.Limit...)
	} else {
		bucketRange.Limit = upperBound(prefix)
	}
	return &bucketIterator{g.src.NewIterator(bucketRange), len(prefix)}
}

type bucketPutter struct {
	prefix string
	src    Putter
}

func (p *bucketPutter) Put(key, value []byte) error {
	return p.src.Put(append([]byte(p.prefix), key...), value)
}

func (p *bucketPutter) Delete(key []byte) error {
	return p.src.Delete(append([]byte(p.prefix), key...))
}

func (p *bucketPutter) NewBatch() Batch {
	return &bucketBatch{p.prefix, p.src.NewBatch()}
}

type bucketBatch struct {
	prefix string
	src    Batch
}

func (b *bucketBatch) Put(key, value []byte) error {
	return b.src.Put(append([]byte(b.prefix), key...), value)
}

func (b *bucketBatch) Delete(key []byte) error {
	return b.src.Delete(append([]byte(b.prefix), key...))
}

func (b *bucketBatch) NewBatch() Batch {
	return &bucketBatch{b.prefix, b.src.NewBatch()}
}

func (b *bucketBatch) Len() int { return b.src.Len() }

func (b *bucketBatch) Write() error { return b.src.Write() }

type bucketIterator struct {
	src       Iterator
	prefixLen int
}

func (i *bucketIterator) Next() bool { return i.src.Next() }

func (i *bucketIterator) Release() { i.src.Release() }

func (i *bucketIterator) Error() error { return i.src.Error() }

func (i *bucketIterator) Key() []byte { return i.src.Key()[i.prefixLen:] }

func (i *bucketIterator) Value() []byte { return i.src.Value() }

// upperBound returns the smallest key larger than all keys with the prefix,
// or nil if the prefix is all 0xff.
func upperBound(prefix []byte) []byte {
	limit := bytes.TrimRight(prefix, "\xff")
	if len(limit) == 0 {
		return nil
	}
	limit = append([]byte(nil), limit...)
	limit[len(limit)-1]++
	return limit
}
