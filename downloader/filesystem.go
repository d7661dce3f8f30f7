package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Caches responses in a single JSON file on disk, so that short lived
// processes (e.g. CLI invocations) can share timetables.
type Filesystem struct {
	Path string

	TimeNow func() time.Time

	mutex   sync.Mutex
	records map[string]fsRecord
}

// Body is base64 in the file, so non UTF-8 timetables survive.
type fsRecord struct {
	Body      []byte    `json:"body"`
	SHA256    string    `json:"sha256"`
	FetchedAt time.Time `json:"fetched_at"`
}

func checksum(body []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(body))
}

func NewFilesystem(path string) (*Filesystem, error) {
	fs := &Filesystem{
		Path:    path,
		TimeNow: time.Now,
		records: map[string]fsRecord{},
	}

	err := fs.load()
	if err != nil {
		return nil, err
	}

	return fs, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if body, found := f.lookup(url, options.CacheTTL); found {
			return body, nil
		}
	}

	body, err := HTTPGetWithRetry(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		err = f.store(url, body, options.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("saving: %w", err)
		}
	}

	return body, nil
}

// Returns a fresh record's body. Stale and corrupt records are
// misses.
func (f *Filesystem) lookup(url string, ttl time.Duration) ([]byte, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	record, found := f.records[url]
	if !found || !record.FetchedAt.Add(ttl).After(f.TimeNow()) {
		return nil, false
	}

	if checksum(record.Body) != record.SHA256 {
		return nil, false
	}

	return record.Body, true
}

// Records a response and writes the file, dropping records older
// than ttl on the way.
func (f *Filesystem) store(url string, body []byte, ttl time.Duration) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	now := f.TimeNow().UTC()
	for key, record := range f.records {
		if !record.FetchedAt.Add(ttl).After(now) {
			delete(f.records, key)
		}
	}

	f.records[url] = fsRecord{
		Body:      body,
		SHA256:    checksum(body),
		FetchedAt: now,
	}

	return f.save()
}

func (f *Filesystem) load() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	buf, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	err = json.Unmarshal(buf, &f.records)
	if err != nil {
		return fmt.Errorf("unmarshalling %s: %w", f.Path, err)
	}

	return nil
}

// Replaces the cache file atomically.
func (f *Filesystem) save() error {
	buf, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(buf)
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		return fmt.Errorf("writing: %w", err)
	}

	err = os.Rename(tmp.Name(), f.Path)
	if err != nil {
		return fmt.Errorf("renaming: %w", err)
	}

	return nil
}
