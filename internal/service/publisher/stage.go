package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fleetbay/drydock/internal/service/common"
)

// Names of the files generated into every staged release.
const (
	versionFilename    = "VERSION"
	buildDateFilename  = "BUILD_DATE"
	commitHashFilename = "COMMIT_HASH"
	checksumsFilename  = "CHECKSUMS"
	clientsFilename    = "clients.json"
)

const (
	// stagingFilePermissions is the mode for generated staging files.
	stagingFilePermissions = 0o644
	// stagingDirectoryPermissions is the mode for staging directories.
	stagingDirectoryPermissions = 0o755
)

// errBadInclude is returned for include entries escaping the source root.
var errBadInclude = errors.New("include path escapes the source root")

// buildStaging assembles the release tree under stageDir: the configured
// include list, a client-registry snapshot, the version markers and the
// checksum manifest. The manifest is written last so it covers everything.
func (p *publisher) buildStaging(ctx context.Context, stageDir string) error {
	if err := os.MkdirAll(stageDir, stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	for _, include := range p.cfg.Publish.Include {
		if err := p.stageInclude(stageDir, include); err != nil {
			return err
		}
	}

	if err := p.stageClientSnapshot(ctx, stageDir); err != nil {
		return err
	}

	if err := p.stageMarkers(ctx, stageDir); err != nil {
		return err
	}

	return p.stageChecksums(stageDir)
}

// stageInclude copies one configured entry, file or directory, into the
// staging tree under its source-relative path.
func (p *publisher) stageInclude(stageDir, include string) error {
	relative := filepath.Clean(include)
	if filepath.IsAbs(relative) || relative == ".." ||
		strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", errBadInclude, include)
	}

	source := filepath.Join(p.source, relative)

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat include %s: %w", include, err)
	}

	if info.IsDir() {
		return copyTree(source, filepath.Join(stageDir, relative))
	}

	return copyFile(source, filepath.Join(stageDir, relative), info.Mode())
}

// stageClientSnapshot writes the registry snapshot shipped with every
// release so an installed tree knows the fleet it was built for.
func (p *publisher) stageClientSnapshot(ctx context.Context, stageDir string) error {
	clients, err := p.api.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("snapshot clients: %w", err)
	}

	snapshot, err := json.MarshalIndent(clients, "", "  ")
	if err != nil {
		return fmt.Errorf("encode client snapshot: %w", err)
	}

	snapshot = append(snapshot, '\n')

	target := filepath.Join(stageDir, clientsFilename)
	if err := os.WriteFile(target, snapshot, stagingFilePermissions); err != nil {
		return fmt.Errorf("write %s: %w", clientsFilename, err)
	}

	return nil
}

// stageMarkers writes the VERSION, BUILD_DATE and COMMIT_HASH files agents
// and operators read from an installed tree.
func (p *publisher) stageMarkers(ctx context.Context, stageDir string) error {
	markers := map[string]string{
		versionFilename:    p.version,
		buildDateFilename:  time.Now().UTC().Format(time.RFC3339),
		commitHashFilename: commitHash(ctx, p.source),
	}

	for name, value := range markers {
		target := filepath.Join(stageDir, name)
		if err := os.WriteFile(target, []byte(value+"\n"), stagingFilePermissions); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	return nil
}

// stageChecksums writes the manifest covering every staged file, one
// "<sha256>  <path>" line per file, paths slash-separated and sorted.
func (p *publisher) stageChecksums(stageDir string) error {
	var paths []string

	err := filepath.WalkDir(stageDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() {
			return nil
		}

		relative, relErr := filepath.Rel(stageDir, path)
		if relErr != nil {
			return relErr
		}

		paths = append(paths, filepath.ToSlash(relative))

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk staging dir: %w", err)
	}

	slices.Sort(paths)

	var builder strings.Builder

	for _, relative := range paths {
		digest, digestErr := common.FileSHA256(filepath.Join(stageDir, filepath.FromSlash(relative)))
		if digestErr != nil {
			return digestErr
		}

		builder.WriteString(digest)
		builder.WriteString("  ")
		builder.WriteString(relative)
		builder.WriteString("\n")
	}

	target := filepath.Join(stageDir, checksumsFilename)
	if err := os.WriteFile(target, []byte(builder.String()), stagingFilePermissions); err != nil {
		return fmt.Errorf("write %s: %w", checksumsFilename, err)
	}

	return nil
}

// copyTree copies every regular file under src into dst, preserving modes
// and creating directories as it goes. Non-regular entries are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, relative)

		if entry.IsDir() {
			return os.MkdirAll(target, stagingDirectoryPermissions)
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return copyFile(path, target, info.Mode())
	})
}

// copyFile copies one file, preserving its permission bits so installer
// scripts keep their executable flag.
func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	return nil
}
