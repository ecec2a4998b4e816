package publisher

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetbay/drydock/internal/service/common"
)

// archiveEntry is one extracted file for assertions.
type archiveEntry struct {
	mode fs.FileMode
	data []byte
}

// readArchive extracts a tar.gz into a map keyed by entry name. Directory
// entries are recorded with nil data.
func readArchive(t *testing.T, reader io.Reader) map[string]archiveEntry {
	t.Helper()

	gzipReader, err := gzip.NewReader(reader)
	require.NoError(t, err)

	tarReader := tar.NewReader(gzipReader)
	entries := make(map[string]archiveEntry)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)

		if header.Typeflag == tar.TypeDir {
			entries[header.Name] = archiveEntry{mode: header.FileInfo().Mode()}

			continue
		}

		data, err := io.ReadAll(tarReader)
		require.NoError(t, err)

		entries[header.Name] = archiveEntry{
			mode: header.FileInfo().Mode(),
			data: data,
		}
	}

	return entries
}

// TestCreateArchive verifies digest, size and content round-trip.
func TestCreateArchive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scripts", "install.sh"), []byte("#!/bin/bash\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "VERSION"), []byte("v1.0.0\n"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "out.tar.gz")

	digest, size, err := createArchive(root, archivePath)
	require.NoError(t, err)
	require.Len(t, digest, 64)

	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	require.Equal(t, info.Size(), size)

	// The returned digest is the digest of the written file.
	onDisk, err := common.FileSHA256(archivePath)
	require.NoError(t, err)
	require.Equal(t, onDisk, digest)

	file, err := os.Open(archivePath)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, file.Close()) })

	entries := readArchive(t, file)
	require.Contains(t, entries, "scripts/")
	require.Equal(t, []byte("#!/bin/bash\n"), entries["scripts/install.sh"].data)
	require.Equal(t, fs.FileMode(0o755), entries["scripts/install.sh"].mode.Perm())
	require.Equal(t, []byte("v1.0.0\n"), entries["VERSION"].data)
}
