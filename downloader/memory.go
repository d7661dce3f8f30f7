package downloader

import (
	"context"
	"time"

	"github.com/bluele/gcache"
)

// Number of responses kept by the memory downloader. Three
// timetables per station, with room to spare.
const MemoryCacheSize = 1024

// Caches responses in memory, evicting the least recently used
// once full.
type MemoryDownloader struct {
	cache gcache.Cache

	TimeNow func() time.Time
}

// Adapts MemoryDownloader.TimeNow to the cache's clock.
type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func NewMemory() *MemoryDownloader {
	d := &MemoryDownloader{TimeNow: time.Now}
	d.cache = gcache.New(MemoryCacheSize).
		LRU().
		Clock(clockFunc(func() time.Time { return d.TimeNow() })).
		Build()
	return d
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if cached, err := d.cache.Get(url); err == nil {
			return cached.([]byte), nil
		}
	}

	body, err := HTTPGetWithRetry(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache && options.CacheTTL > 0 {
		// Only fails on a nil key.
		_ = d.cache.SetWithExpire(url, body, options.CacheTTL)
	}

	return body, nil
}
