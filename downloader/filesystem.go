package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Caches downloaded archives as files in a directory. One file per
// URL; the file's modification time is the retrieval time.
type Filesystem struct {
	Dir     string
	Logger  *slog.Logger
	TimeNow func() time.Time

	mutex sync.Mutex
}

func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Filesystem{
		Dir:     dir,
		Logger:  slog.Default(),
		TimeNow: time.Now,
	}, nil
}

func (f *Filesystem) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.Dir, hex.EncodeToString(sum[:])+".zip")
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	path := f.path(url)

	if options.Cache {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.ModTime().Add(options.CacheTTL).After(f.TimeNow()):
			body, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading cached archive: %w", err)
			}
			f.Logger.Debug("archive cache hit", "url", url)
			return body, nil
		case err == nil:
			f.Logger.Debug("archive cache expired", "url", url)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("checking cache: %w", err)
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		// Readers only ever see complete files.
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, body, 0644); err != nil {
			return nil, fmt.Errorf("writing cache: %w", err)
		}
		now := f.TimeNow()
		if err := os.Chtimes(tmp, now, now); err != nil {
			return nil, fmt.Errorf("stamping cache: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return nil, fmt.Errorf("renaming cache: %w", err)
		}
	}

	return body, nil
}
