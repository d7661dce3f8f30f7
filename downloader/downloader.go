package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	DefaultRetryWait = 500 * time.Millisecond

	// Upper bound on GetOptions.Retries. Higher values are clamped.
	MaxRetries = 10
)

// Returned when a body exceeds GetOptions.MaxSize.
var ErrBodyTooLarge = errors.New("body too large")

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration

	// Number of additional attempts made after a failed request.
	// Only transport errors and 5xx responses are retried.
	Retries int

	// Base wait between attempts. Doubles for every attempt, with
	// jitter. Defaults to DefaultRetryWait.
	RetryWait time.Duration
}

// A thing capable of downloading a file, optionally with caching
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Returned when the server responds with anything but 200 OK.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Gets a file. Doesn't cache or retry. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, options.MaxSize)
	}

	return body, nil
}

// Gets a file, retrying as configured in options.
func HTTPGetWithRetry(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	wait := options.RetryWait
	if wait <= 0 {
		wait = DefaultRetryWait
	}
	retries := options.Retries
	if retries > MaxRetries {
		retries = MaxRetries
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			// Full jitter on an exponential backoff.
			backoff := wait << (attempt - 1)
			sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return nil, errors.Join(err, ctx.Err())
			case <-time.After(sleep):
			}
		}

		var body []byte
		body, err = HTTPGet(ctx, url, headers, options)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", retries+1, err)
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
