package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serves body after failing the first `failures` requests with
// status.
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *int32) {
	var calls int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		assert.Equal(t, "bar", r.Header.Get("X-Foo"))
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s, &calls
}

func TestHTTPGet(t *testing.T) {
	s, calls := flakyServer(t, 0, 0, "hello")

	body, err := HTTPGet(context.Background(), s.URL, map[string]string{"X-Foo": "bar"}, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestHTTPGetMaxSize(t *testing.T) {
	s, calls := flakyServer(t, 0, 0, "09:00,24\n09:05,24\n")
	headers := map[string]string{"X-Foo": "bar"}

	// Exactly at the limit is fine
	body, err := HTTPGet(context.Background(), s.URL, headers, GetOptions{MaxSize: 18})
	require.NoError(t, err)
	assert.Equal(t, "09:00,24\n09:05,24\n", string(body))

	// One byte short fails instead of truncating the last row
	_, err = HTTPGet(context.Background(), s.URL, headers, GetOptions{MaxSize: 17})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	// and isn't retried
	before := atomic.LoadInt32(calls)
	_, err = HTTPGetWithRetry(context.Background(), s.URL, headers, GetOptions{MaxSize: 17, Retries: 2, RetryWait: time.Millisecond})
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
	assert.Equal(t, before+1, atomic.LoadInt32(calls))
}

func TestHTTPGetStatusError(t *testing.T) {
	s, _ := flakyServer(t, 1, http.StatusNotFound, "")

	_, err := HTTPGet(context.Background(), s.URL, nil, GetOptions{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPGetWithRetry(t *testing.T) {
	t.Run("recovers from 5xx", func(t *testing.T) {
		s, calls := flakyServer(t, 2, http.StatusBadGateway, "hello")

		body, err := HTTPGetWithRetry(
			context.Background(),
			s.URL,
			map[string]string{"X-Foo": "bar"},
			GetOptions{Retries: 2, RetryWait: time.Millisecond},
		)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("gives up after retries", func(t *testing.T) {
		s, calls := flakyServer(t, 10, http.StatusServiceUnavailable, "hello")

		_, err := HTTPGetWithRetry(
			context.Background(),
			s.URL,
			nil,
			GetOptions{Retries: 2, RetryWait: time.Millisecond},
		)
		require.Error(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("clamps retries", func(t *testing.T) {
		s, calls := flakyServer(t, 100, http.StatusServiceUnavailable, "hello")

		_, err := HTTPGetWithRetry(
			context.Background(),
			s.URL,
			nil,
			GetOptions{Retries: 40, RetryWait: time.Microsecond},
		)
		require.Error(t, err)
		assert.Equal(t, int32(MaxRetries+1), atomic.LoadInt32(calls))
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		s, calls := flakyServer(t, 10, http.StatusNotFound, "hello")

		_, err := HTTPGetWithRetry(
			context.Background(),
			s.URL,
			nil,
			GetOptions{Retries: 2, RetryWait: time.Millisecond},
		)
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		s, _ := flakyServer(t, 10, http.StatusInternalServerError, "hello")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := HTTPGetWithRetry(ctx, s.URL, nil, GetOptions{Retries: 5, RetryWait: time.Hour})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestMemoryDownloaderCache(t *testing.T) {
	s, calls := flakyServer(t, 0, 0, "hello")

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	d := NewMemory()
	d.TimeNow = func() time.Time { return now }

	headers := map[string]string{"X-Foo": "bar"}
	options := GetOptions{Cache: true, CacheTTL: time.Minute}

	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), s.URL, headers, options)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// Expired
	now = now.Add(2 * time.Minute)
	_, err := d.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	// Not cached at all
	_, err = d.Get(context.Background(), s.URL, headers, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestFilesystemCache(t *testing.T) {
	s, calls := flakyServer(t, 0, 0, "hello")

	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	fs, err := NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	headers := map[string]string{"X-Foo": "bar"}
	options := GetOptions{Cache: true, CacheTTL: time.Hour}

	body, err := fs.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	// A second instance picks up the record from disk.
	fs2, err := NewFilesystem(path)
	require.NoError(t, err)
	fs2.TimeNow = func() time.Time { return now.Add(time.Minute) }

	body, err = fs2.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// And refetches once expired.
	fs2.TimeNow = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = fs2.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestFilesystemCacheIgnoresCorruptRecords(t *testing.T) {
	s, calls := flakyServer(t, 0, 0, "hello")

	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	record := `{"%s": {"body": "%s", "sha256": "%x", "fetched_at": "2026-10-19T09:00:00Z"}}`
	tampered := base64.StdEncoding.EncodeToString([]byte("tampered"))
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(record, s.URL, tampered, sha256.Sum256([]byte("hello")))), 0644))

	fs, err := NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	options := GetOptions{Cache: true, CacheTTL: time.Hour}
	body, err := fs.Get(context.Background(), s.URL, map[string]string{"X-Foo": "bar"}, options)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// The good copy replaced it on disk
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"body": "aGVsbG8="`)
	assert.NotContains(t, string(buf), tampered)
}

func TestFilesystemCacheNonUTF8Body(t *testing.T) {
	// ISO-8859-2 "Staţia", not valid UTF-8
	timetable := "Sta\xfeia Bucium\n09:00,24\n"
	s, calls := flakyServer(t, 0, 0, timetable)

	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	headers := map[string]string{"X-Foo": "bar"}
	options := GetOptions{Cache: true, CacheTTL: time.Hour}

	fs, err := NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }
	body, err := fs.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, []byte(timetable), body)

	fs2, err := NewFilesystem(path)
	require.NoError(t, err)
	fs2.TimeNow = func() time.Time { return now.Add(time.Minute) }
	body, err = fs2.Get(context.Background(), s.URL, headers, options)
	require.NoError(t, err)
	assert.Equal(t, []byte(timetable), body)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFilesystemCacheBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := NewFilesystem(path)
	assert.Error(t, err)
}
