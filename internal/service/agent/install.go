package agent

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
)

const (
	// versionFilename is the marker naming the installed version.
	versionFilename = "VERSION"
	// checksumsFilename is the per-file digest manifest shipped in a release.
	checksumsFilename = "CHECKSUMS"

	// stagingDirectoryPermissions is the mode for directories the agent makes.
	stagingDirectoryPermissions = 0o755

	// sha256HexLength is the length of a hex-encoded SHA-256 digest.
	sha256HexLength = 64
)

var (
	errChecksumMismatch      = errors.New("downloaded archive does not match its published digest")
	errUnsafeArchivePath     = errors.New("archive entry escapes the extraction root")
	errMalformedManifest     = errors.New("malformed checksum manifest line")
	errStagedVersionMismatch = errors.New("staged tree does not carry the offered version")
)

// installedVersion reads the version marker of the tree at installRoot. A
// missing or empty marker means no install has succeeded yet.
func installedVersion(installRoot string) string {
	contents, err := os.ReadFile(filepath.Clean(filepath.Join(installRoot, versionFilename)))
	if err != nil {
		return fleet.UnknownVersion
	}

	version := strings.TrimSpace(string(contents))
	if version == "" {
		return fleet.UnknownVersion
	}

	return version
}

// fetch downloads the offered archive into the scratch directory, hashing it
// as it streams. Size and digest are checked against the published values and
// a mismatch discards the download, so a corrupted or tampered archive never
// reaches extraction.
func (a *agent) fetch(ctx context.Context, target *fleet.Artifact, downloadPath string) (string, error) {
	archivePath := filepath.Join(a.workDir, path.Base(target.ObjectKey))

	out, err := os.Create(filepath.Clean(archivePath))
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	hasher := sha256.New()

	written, err := a.api.DownloadArtifact(ctx, downloadPath, io.MultiWriter(out, hasher))

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(archivePath)

		return "", fmt.Errorf("download artifact: %w", err)
	}

	if written != target.Size {
		_ = os.Remove(archivePath)

		return "", fmt.Errorf("size %d, published %d: %w", written, target.Size, errChecksumMismatch)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if digest != target.SHA256 {
		_ = os.Remove(archivePath)

		return "", fmt.Errorf("sha256 %s, published %s: %w", digest, target.SHA256, errChecksumMismatch)
	}

	logger.InfoKV(ctx, "Archive downloaded and verified", "bytes", written, "sha256", digest)

	return archivePath, nil
}

// stageRelease unpacks the verified archive into a fresh staging directory
// beside the install root, on the same volume, so the later activation is a
// single rename. The staged version marker must match the offered version.
func (a *agent) stageRelease(ctx context.Context, archivePath, version string) (string, error) {
	stagingDir := filepath.Join(filepath.Dir(filepath.Clean(a.cfg.InstallRoot)), ".drydock-stage-"+uuid.NewString())

	if err := os.MkdirAll(stagingDir, stagingDirectoryPermissions); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	a.stagingDir = stagingDir

	if err := extractArchive(archivePath, stagingDir); err != nil {
		return "", err
	}

	contents, err := os.ReadFile(filepath.Clean(filepath.Join(stagingDir, versionFilename)))
	if err != nil {
		return "", fmt.Errorf("read staged version marker: %w", err)
	}

	if staged := strings.TrimSpace(string(contents)); staged != version {
		return "", fmt.Errorf("staged %q, offered %q: %w", staged, version, errStagedVersionMismatch)
	}

	logger.InfoKV(ctx, "Release staged", "path", stagingDir, "version", version)

	return stagingDir, nil
}

// extractArchive unpacks the tar.gz archive into destDir. Entry names are
// confined to the destination, so a crafted archive cannot write outside it.
func extractArchive(archivePath, destDir string) error {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = file.Close()
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}

	defer func() {
		_ = gzipReader.Close()
	}()

	tarReader := tar.NewReader(gzipReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := extractionTarget(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeExtractedFile(target, header.FileInfo().Mode().Perm(), tarReader); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
		default:
			// Releases carry only files and directories. Anything else,
			// symlinks included, is dropped rather than followed.
		}
	}

	return nil
}

// extractionTarget maps an archive entry name to a path inside destDir,
// rejecting absolute names and names that climb out of the destination.
func extractionTarget(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q: %w", name, errUnsafeArchivePath)
	}

	return filepath.Join(destDir, cleaned), nil
}

// writeExtractedFile writes one regular archive entry, preserving the mode
// bits recorded at packaging time.
func writeExtractedFile(target string, mode os.FileMode, contents io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), stagingDirectoryPermissions); err != nil {
		return err
	}

	out, err := os.OpenFile(filepath.Clean(target), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, contents); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

// parseChecksums reads a release's digest manifest into a map keyed by the
// slash-separated staged path.
func parseChecksums(path string) (map[string]string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read checksum manifest: %w", err)
	}

	entries := make(map[string]string)

	for _, line := range strings.Split(string(contents), "\n") {
		if line == "" {
			continue
		}

		digest, name, found := strings.Cut(line, "  ")
		if !found || len(digest) != sha256HexLength || name == "" {
			return nil, fmt.Errorf("%q: %w", line, errMalformedManifest)
		}

		entries[name] = digest
	}

	return entries, nil
}
