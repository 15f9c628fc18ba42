package parse_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsimport/parse"
	"tidbyt.dev/gtfsimport/testutil"
)

func rawZip(t *testing.T, files map[string][]byte) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestArchiveMember(t *testing.T) {
	a, err := parse.OpenArchive(testutil.BuildZip(t, map[string][]string{
		"routes.txt": {"route_id", "R1"},
		"trips.txt":  {"trip_id", "T1"},
	}))
	require.NoError(t, err)

	assert.True(t, a.Has("routes.txt"))
	assert.False(t, a.Has("stops.txt"))

	text, err := a.Member("routes.txt")
	require.NoError(t, err)
	assert.Equal(t, "route_id\nR1", text)
}

func TestArchiveMissingMember(t *testing.T) {
	a, err := parse.OpenArchive(testutil.BuildZip(t, map[string][]string{
		"routes.txt": {"route_id"},
	}))
	require.NoError(t, err)

	_, err = a.Member("trips.txt")
	require.Error(t, err)

	var archiveErr *parse.ArchiveError
	require.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, "trips.txt", archiveErr.Member)
	assert.True(t, errors.Is(err, parse.ErrMissingMember))
}

func TestArchiveNotAZip(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
	}{
		{"empty", []byte{}},
		{"text", []byte("route_id,agency_id\nR1,A1\n")},
		{"truncated", testutil.BuildZip(t, map[string][]string{"routes.txt": {"route_id"}})[:20]},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse.OpenArchive(tc.buf)
			require.Error(t, err)
			var archiveErr *parse.ArchiveError
			assert.True(t, errors.As(err, &archiveErr))
		})
	}
}

func TestArchiveSubdirectory(t *testing.T) {
	buf := rawZip(t, map[string][]byte{
		"feed/":           nil,
		"feed/routes.txt": []byte("route_id\nnested"),
		"feed/trips.txt":  []byte("trip_id\nnested"),
		"trips.txt":       []byte("trip_id\ntop"),
	})

	// Only the top level is searched by default
	a, err := parse.OpenArchive(buf)
	require.NoError(t, err)

	assert.False(t, a.Has("routes.txt"))
	_, err = a.Member("routes.txt")
	require.Error(t, err)
	var archiveErr *parse.ArchiveError
	require.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, "routes.txt", archiveErr.Member)
	assert.True(t, errors.Is(err, parse.ErrMissingMember))

	trips, err := a.Member("trips.txt")
	require.NoError(t, err)
	assert.Equal(t, "trip_id\ntop", trips)

	// Full paths work regardless
	routes, err := a.Member("feed/routes.txt")
	require.NoError(t, err)
	assert.Equal(t, "route_id\nnested", routes)

	// Opting in finds nested members, but top level still wins
	a, err = parse.OpenArchive(buf, parse.ArchiveOptions{AllowNested: true})
	require.NoError(t, err)

	routes, err = a.Member("routes.txt")
	require.NoError(t, err)
	assert.Equal(t, "route_id\nnested", routes)

	trips, err = a.Member("trips.txt")
	require.NoError(t, err)
	assert.Equal(t, "trip_id\ntop", trips)

	// Names must match exactly
	assert.False(t, a.Has("ROUTES.TXT"))
	assert.False(t, a.Has("feed"))
}

func TestArchiveNestedOnly(t *testing.T) {
	buf := rawZip(t, map[string][]byte{
		"feed/routes.txt": []byte("route_id\nR1"),
		"feed/trips.txt":  []byte("trip_id\nT1"),
	})

	a, err := parse.OpenArchive(buf)
	require.NoError(t, err)
	for _, name := range []string{parse.RoutesFile, parse.TripsFile} {
		_, err := a.Member(name)
		assert.True(t, errors.Is(err, parse.ErrMissingMember), "%s: %v", name, err)
	}

	a, err = parse.OpenArchive(buf, parse.ArchiveOptions{AllowNested: true})
	require.NoError(t, err)
	routes, err := a.Member(parse.RoutesFile)
	require.NoError(t, err)
	assert.Equal(t, "route_id\nR1", routes)
	trips, err := a.Member(parse.TripsFile)
	require.NoError(t, err)
	assert.Equal(t, "trip_id\nT1", trips)
}

func TestArchiveNestedAmbiguous(t *testing.T) {
	buf := rawZip(t, map[string][]byte{
		"a/routes.txt": []byte("route_id\nRA"),
		"b/routes.txt": []byte("route_id\nRB"),
		"trips.txt":    []byte("trip_id\nT1"),
	})

	for _, opts := range []parse.ArchiveOptions{{}, {AllowNested: true}} {
		a, err := parse.OpenArchive(buf, opts)
		require.NoError(t, err)

		assert.False(t, a.Has(parse.RoutesFile))
		_, err = a.Member(parse.RoutesFile)
		require.Error(t, err)

		var archiveErr *parse.ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assert.Equal(t, parse.RoutesFile, archiveErr.Member)
		if opts.AllowNested {
			assert.True(t, errors.Is(err, parse.ErrAmbiguousMember), err.Error())
			assert.Contains(t, err.Error(), "a/routes.txt")
			assert.Contains(t, err.Error(), "b/routes.txt")
		} else {
			assert.True(t, errors.Is(err, parse.ErrMissingMember), err.Error())
		}

		// Unambiguous members are unaffected
		_, err = a.Member(parse.TripsFile)
		assert.NoError(t, err)
	}
}

func TestArchiveByteOrderMark(t *testing.T) {
	a, err := parse.OpenArchive(rawZip(t, map[string][]byte{
		"routes.txt": append([]byte{0xef, 0xbb, 0xbf}, []byte("route_id\nR1")...),
	}))
	require.NoError(t, err)

	text, err := a.Member("routes.txt")
	require.NoError(t, err)
	assert.Equal(t, "route_id\nR1", text)
}

func TestArchiveInvalidUTF8(t *testing.T) {
	a, err := parse.OpenArchive(rawZip(t, map[string][]byte{
		"routes.txt": {'r', 0xff, 0xfe, '\n'},
	}))
	require.NoError(t, err)

	_, err = a.Member("routes.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, parse.ErrInvalidUTF8))
}
