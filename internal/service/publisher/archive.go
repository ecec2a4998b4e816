package publisher

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// createArchive writes a gzipped tarball of root into outPath and returns
// the archive's hex SHA-256 digest and byte size. Entry names are relative
// slash paths, so extraction recreates the staged tree exactly.
func createArchive(root, outPath string) (string, int64, error) {
	out, err := os.Create(filepath.Clean(outPath))
	if err != nil {
		return "", 0, fmt.Errorf("create archive: %w", err)
	}

	hasher := sha256.New()
	gzipWriter := gzip.NewWriter(io.MultiWriter(out, hasher))
	tarWriter := tar.NewWriter(gzipWriter)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if relative == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("header for %s: %w", relative, err)
		}

		header.Name = filepath.ToSlash(relative)
		if entry.IsDir() {
			header.Name += "/"
		}

		if err = tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", relative, err)
		}

		if entry.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(filepath.Clean(path))
		if err != nil {
			return err
		}

		// Best-effort cleanup.
		defer func() {
			_ = file.Close()
		}()

		if _, err = io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("archive %s: %w", relative, err)
		}

		return nil
	})

	if walkErr != nil {
		_ = tarWriter.Close()
		_ = gzipWriter.Close()
		_ = out.Close()
		_ = os.Remove(outPath)

		return "", 0, fmt.Errorf("walk staging tree: %w", walkErr)
	}

	if err = tarWriter.Close(); err == nil {
		err = gzipWriter.Close()
	}

	if err != nil {
		_ = out.Close()
		_ = os.Remove(outPath)

		return "", 0, fmt.Errorf("finalize archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		_ = out.Close()

		return "", 0, fmt.Errorf("stat archive: %w", err)
	}

	if err = out.Close(); err != nil {
		return "", 0, fmt.Errorf("close archive: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), info.Size(), nil
}
