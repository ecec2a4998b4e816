package agent

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetbay/drydock/internal/domain/fleet"
)

// tarEntry describes one entry of a hand-built test archive.
type tarEntry struct {
	name string
	mode int64
	data string
	dir  bool
}

// buildArchive produces a gzipped tarball from the given entries.
func buildArchive(t *testing.T, entries []tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer

	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, entry := range entries {
		if entry.dir {
			require.NoError(t, tarWriter.WriteHeader(&tar.Header{
				Name:     entry.name,
				Mode:     0o755,
				Typeflag: tar.TypeDir,
			}))

			continue
		}

		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name:     entry.name,
			Mode:     entry.mode,
			Size:     int64(len(entry.data)),
			Typeflag: tar.TypeReg,
		}))

		_, err := tarWriter.Write([]byte(entry.data))
		require.NoError(t, err)
	}

	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzipWriter.Close())

	return buf.Bytes()
}

// writeArchiveFile persists archive bytes next to the test's other state.
func writeArchiveFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "release.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestInstalledVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	require.Equal(t, fleet.UnknownVersion, installedVersion(filepath.Join(root, "missing")))

	require.NoError(t, os.WriteFile(filepath.Join(root, versionFilename), []byte("v1.2.3\n"), 0o644))
	require.Equal(t, "v1.2.3", installedVersion(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, versionFilename), []byte("  \n"), 0o644))
	require.Equal(t, fleet.UnknownVersion, installedVersion(root))
}

func TestExtractArchive(t *testing.T) {
	t.Parallel()

	archivePath := writeArchiveFile(t, buildArchive(t, []tarEntry{
		{name: "scripts/", dir: true},
		{name: "scripts/run.sh", mode: 0o755, data: "#!/bin/bash\nexit 0\n"},
		{name: "VERSION", mode: 0o644, data: "v1.0.0\n"},
	}))

	dest := t.TempDir()
	require.NoError(t, extractArchive(archivePath, dest))

	version, err := os.ReadFile(filepath.Join(dest, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, "v1.0.0\n", string(version))

	script, err := os.ReadFile(filepath.Join(dest, "scripts", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/bash\nexit 0\n", string(script))

	info, err := os.Stat(filepath.Join(dest, "scripts", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	t.Parallel()

	archivePath := writeArchiveFile(t, buildArchive(t, []tarEntry{
		{name: "../evil.txt", mode: 0o644, data: "outside"},
	}))

	dest := filepath.Join(t.TempDir(), "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	err := extractArchive(archivePath, dest)
	require.ErrorIs(t, err, errUnsafeArchivePath)

	_, err = os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestExtractionTarget(t *testing.T) {
	t.Parallel()

	dest := filepath.Join("/", "tmp", "stage")

	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{name: "plain file", entry: "VERSION", wantErr: false},
		{name: "nested file", entry: "scripts/run.sh", wantErr: false},
		{name: "dot prefixed", entry: "./VERSION", wantErr: false},
		{name: "parent escape", entry: "../evil", wantErr: true},
		{name: "nested escape", entry: "a/../../evil", wantErr: true},
		{name: "absolute path", entry: "/etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, err := extractionTarget(dest, tt.entry)
			if tt.wantErr {
				require.ErrorIs(t, err, errUnsafeArchivePath)
				return
			}

			require.NoError(t, err)
			require.True(t, filepath.IsAbs(target))
			require.Contains(t, target, dest)
		})
	}
}

func TestParseChecksums(t *testing.T) {
	t.Parallel()

	manifestPath := filepath.Join(t.TempDir(), checksumsFilename)
	manifest := "" +
		"3f79bb7b435b05321651daefd374cdc681dc06faa65e374e38337b88ca046dea  VERSION\n" +
		"252f10c83610ebca1a059c0bae8255eba2f95be4d1d7bcfa89d7248a82d9f111  scripts/run.sh\n"
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))

	entries, err := parseChecksums(manifestPath)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t,
		"3f79bb7b435b05321651daefd374cdc681dc06faa65e374e38337b88ca046dea",
		entries["VERSION"])
	require.Equal(t,
		"252f10c83610ebca1a059c0bae8255eba2f95be4d1d7bcfa89d7248a82d9f111",
		entries["scripts/run.sh"])
}

func TestParseChecksumsRejectsMalformedLine(t *testing.T) {
	t.Parallel()

	manifestPath := filepath.Join(t.TempDir(), checksumsFilename)
	require.NoError(t, os.WriteFile(manifestPath, []byte("deadbeef  VERSION\n"), 0o644))

	_, err := parseChecksums(manifestPath)
	require.ErrorIs(t, err, errMalformedManifest)
}
