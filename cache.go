package imagesource

import (
	"bytes"
	"context"
	"io"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/ygrebnov/errorc"
	"github.com/zeebo/xxh3"
)

// Cache hands out one Source per key so observers of the same image share
// decode attempts. A key is served either by the opener given to the Get that
// created it or by content stored with Put, never both. It is safe for
// concurrent use.
type Cache struct {
	opts    []Option
	sources *xsync.Map[string, cacheEntry]
	content *xsync.Map[string, blob]
}

type cacheEntry struct {
	src *Source
	// stored marks sources reading content stored with Put.
	stored bool
}

// blob is encoded content stored with Put.
type blob struct {
	data []byte
	sum  uint64
}

// NewCache returns an empty cache. opts apply to every Source it creates;
// each source is named after its key.
func NewCache(opts ...Option) *Cache {
	return &Cache{
		opts:    opts,
		sources: xsync.NewMap[string, cacheEntry](),
		content: xsync.NewMap[string, blob](),
	}
}

// Get returns the Source for key, creating it over open if absent.
// open is ignored when the source already exists.
func (c *Cache) Get(key string, open Opener) (*Source, error) {
	e, err := c.entry(key, open, false)
	if err != nil {
		return nil, err
	}
	return e.src, nil
}

func (c *Cache) entry(key string, open Opener, stored bool) (cacheEntry, error) {
	if e, ok := c.sources.Load(key); ok {
		return e, nil
	}
	opts := append(append([]Option(nil), c.opts...), WithName(key))
	s, err := NewSource(open, opts...)
	if err != nil {
		return cacheEntry{}, err
	}
	actual, _ := c.sources.LoadOrStore(key, cacheEntry{src: s, stored: stored})
	return actual, nil
}

// Put stores encoded bytes under key and returns the Source serving them.
// Storing content that differs from the previous content flushes the source,
// so interested observers receive a fresh decode. Identical content is a no-op.
// Put fails with ErrKeyInUse when key was created by Get over another opener,
// whose source would never read the stored bytes.
func (c *Cache) Put(key string, data []byte) (*Source, error) {
	if e, ok := c.sources.Load(key); ok && !e.stored {
		return nil, errorc.With(ErrKeyInUse, errorc.String("key", key))
	}
	b := blob{data: bytes.Clone(data), sum: xxh3.Hash(data)}
	prev, replaced := c.content.LoadAndStore(key, b)

	e, err := c.entry(key, c.storedOpener(key), true)
	if err != nil {
		c.content.Delete(key)
		return nil, err
	}
	if !e.stored {
		// Lost the race to a Get creating the key.
		c.content.Delete(key)
		return nil, errorc.With(ErrKeyInUse, errorc.String("key", key))
	}
	if replaced && prev.sum != b.sum {
		e.src.Flush()
	}
	return e.src, nil
}

func (c *Cache) storedOpener(key string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, ok := c.content.Load(key)
		if !ok {
			return nil, errorc.With(ErrResourceGone, errorc.String("key", key))
		}
		return io.NopCloser(bytes.NewReader(b.data)), nil
	}
}

// Flush flushes the source for key. It reports whether one exists.
func (c *Cache) Flush(key string) bool {
	e, ok := c.sources.Load(key)
	if ok {
		e.src.Flush()
	}
	return ok
}

// Remove forgets key and closes its source; its observers receive ErrClosed
// with needsReload set. It reports whether a source existed.
func (c *Cache) Remove(key string) bool {
	c.content.Delete(key)
	e, ok := c.sources.LoadAndDelete(key)
	if ok {
		e.src.Close()
	}
	return ok
}

// Len returns the number of sources.
func (c *Cache) Len() int { return c.sources.Size() }

// Close removes and closes every source.
func (c *Cache) Close() {
	c.sources.Range(func(key string, _ cacheEntry) bool {
		c.Remove(key)
		return true
	})
}
