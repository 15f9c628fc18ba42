package parse

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spkg/bom"
)

const (
	RoutesFile = "routes.txt"
	TripsFile  = "trips.txt"
)

// A GTFS zip archive held in memory.
type Archive struct {
	ArchiveOptions

	// Keyed by full path within the archive.
	files map[string]*zip.File

	// Keyed by base name, for members below the top level.
	nested map[string][]*zip.File
}

type ArchiveOptions struct {
	// Members must sit at the top level unless AllowNested is set.
	// Some agencies publish feeds with everything inside a single
	// directory. With AllowNested, a member missing from the top
	// level is looked up by base name in subdirectories, and more
	// than one candidate is an error.
	AllowNested bool
}

func OpenArchive(buf []byte, opts ...ArchiveOptions) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, &ArchiveError{Err: errors.Wrap(err, "unzipping")}
	}

	a := &Archive{
		files:  map[string]*zip.File{},
		nested: map[string][]*zip.File{},
	}
	if len(opts) > 0 {
		a.ArchiveOptions = opts[0]
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.files[f.Name] = f
		if i := strings.LastIndex(f.Name, "/"); i >= 0 {
			base := f.Name[i+1:]
			a.nested[base] = append(a.nested[base], f)
		}
	}

	return a, nil
}

func (a *Archive) lookup(name string) (*zip.File, error) {
	if f, found := a.files[name]; found {
		return f, nil
	}
	if !a.AllowNested {
		return nil, &ArchiveError{Member: name, Err: ErrMissingMember}
	}

	candidates := a.nested[name]
	switch len(candidates) {
	case 0:
		return nil, &ArchiveError{Member: name, Err: ErrMissingMember}
	case 1:
		return candidates[0], nil
	}

	paths := make([]string, 0, len(candidates))
	for _, f := range candidates {
		paths = append(paths, f.Name)
	}
	return nil, &ArchiveError{
		Member: name,
		Err:    errors.Wrapf(ErrAmbiguousMember, "found %s", strings.Join(paths, ", ")),
	}
}

// True if the named member can be read from the archive.
func (a *Archive) Has(name string) bool {
	_, err := a.lookup(name)
	return err == nil
}

// Returns the full text of the named member. A leading byte order
// mark is dropped.
func (a *Archive) Member(name string) (string, error) {
	f, err := a.lookup(name)
	if err != nil {
		return "", err
	}

	rc, err := f.Open()
	if err != nil {
		return "", &ArchiveError{Member: name, Err: errors.Wrap(err, "opening")}
	}
	defer rc.Close()

	buf, err := io.ReadAll(bom.NewReader(rc))
	if err != nil {
		return "", &ArchiveError{Member: name, Err: errors.Wrap(err, "reading")}
	}

	if !utf8.Valid(buf) {
		return "", &ArchiveError{Member: name, Err: ErrInvalidUTF8}
	}

	return string(buf), nil
}
