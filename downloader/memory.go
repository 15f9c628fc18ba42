package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded archives in memory
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]memoryEntry

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   map[string]memoryEntry{},
		TimeNow: time.Now,
	}
}

type memoryEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) lookup(url string) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, ok := d.cache[url]
	if !ok {
		return nil, false
	}
	if !entry.expiration.After(d.TimeNow()) {
		delete(d.cache, url)
		return nil, false
	}
	return entry.data, true
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if data, ok := d.lookup(url); ok {
			return data, nil
		}
	}

	// Lock is not held while downloading, so concurrent misses
	// for the same URL may both fetch it.
	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.cache[url] = memoryEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}
