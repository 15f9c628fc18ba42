package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type GetOptions struct {
	// Responses larger than this fail. 0 means no limit.
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// Fetches GTFS archives, optionally with caching.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Response exceeded GetOptions.MaxSize.
type TooLargeError struct {
	URL     string
	MaxSize int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("GET %s: body exceeds %d bytes", e.URL, e.MaxSize)
}

// Gets a file. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	// Read one byte past the limit to tell a truncated body from
	// one that fits exactly.
	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, &TooLargeError{URL: url, MaxSize: options.MaxSize}
	}

	return body, nil
}
