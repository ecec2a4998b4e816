package agent

import (
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/fleetbay/drydock/internal/logger"
)

const (
	// entrypointFileMode is the mode entrypoints get in the bin directory.
	entrypointFileMode os.FileMode = 0o755

	// backupTimestampLayout names backups by the moment they were displaced.
	backupTimestampLayout = "20060102T150405Z"

	// keptBackups is how many previous trees the retention sweep preserves.
	keptBackups = 5
)

var (
	errNoChecksum = errors.New("checksum missing for entrypoint")
)

// apply swaps the staged tree into place. Services are stopped first, the
// current tree is renamed into the backup directory, the staged tree is
// activated with a single rename, entrypoints are re-propagated and services
// are started again. Any failure aborts the run and leaves the backup for
// manual recovery.
func (a *agent) apply(ctx context.Context, stagingDir, currentVersion string) error {
	if err := a.runServices(ctx, "stop"); err != nil {
		return err
	}

	if err := a.backupCurrent(ctx, currentVersion); err != nil {
		return err
	}

	if err := os.Rename(stagingDir, a.cfg.InstallRoot); err != nil {
		return fmt.Errorf("activate staged install: %w", err)
	}

	// The staged tree is live now, so cleanup must not touch it.
	a.stagingDir = ""

	if err := a.propagateEntrypoints(ctx); err != nil {
		return err
	}

	return a.runServices(ctx, "start")
}

// backupCurrent moves an existing install tree into the backup directory.
// The retained tree is the only rollback mechanism, there is no automatic
// restore.
func (a *agent) backupCurrent(ctx context.Context, currentVersion string) error {
	if _, err := os.Stat(a.cfg.InstallRoot); err != nil {
		if os.IsNotExist(err) {
			logger.Info(ctx, "No existing install to back up")

			return nil
		}

		return fmt.Errorf("inspect install root: %w", err)
	}

	if err := os.MkdirAll(a.cfg.BackupDir, stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("prepare backup directory: %w", err)
	}

	name := currentVersion + "-" + time.Now().UTC().Format(backupTimestampLayout)
	backupPath := filepath.Join(a.cfg.BackupDir, name)

	if err := os.Rename(a.cfg.InstallRoot, backupPath); err != nil {
		return fmt.Errorf("back up current install: %w", err)
	}

	logger.InfoKV(ctx, "Previous install backed up", "path", backupPath)

	return nil
}

// propagateEntrypoints copies the configured entrypoint scripts from the
// freshly installed tree into the bin directory. Each copy is gated by the
// staged checksum manifest and shell scripts get a syntax check after they
// land.
func (a *agent) propagateEntrypoints(ctx context.Context) error {
	if len(a.cfg.Entrypoints) == 0 {
		return nil
	}

	manifest, err := parseChecksums(filepath.Join(a.cfg.InstallRoot, checksumsFilename))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.BinDir, stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("prepare bin directory: %w", err)
	}

	for _, entry := range a.cfg.Entrypoints {
		if err := a.propagateEntrypoint(ctx, manifest, entry); err != nil {
			return fmt.Errorf("propagate %s: %w", entry, err)
		}
	}

	return nil
}

// propagateEntrypoint installs one entrypoint into the bin directory, with
// the manifest digest enforced during the swap.
func (a *agent) propagateEntrypoint(ctx context.Context, manifest map[string]string, entry string) error {
	digest, ok := manifest[path.Clean(entry)]
	if !ok {
		return errNoChecksum
	}

	checksum, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("decode checksum: %w", err)
	}

	data, err := os.ReadFile(filepath.Clean(filepath.Join(a.cfg.InstallRoot, filepath.FromSlash(entry))))
	if err != nil {
		return err
	}

	target := filepath.Join(a.cfg.BinDir, path.Base(entry))

	// The swap needs an existing target on first install.
	if _, err := os.Stat(target); err != nil && os.IsNotExist(err) {
		if _, err := os.Create(filepath.Clean(target)); err != nil {
			return err
		}
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: entrypointFileMode,
		Checksum:   checksum,
		Hash:       crypto.SHA256,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	oldName := target + ".old"
	if _, err := os.Stat(oldName); err == nil {
		_ = os.Remove(oldName)
	}

	if strings.HasSuffix(target, ".sh") {
		if err := checkShellSyntax(ctx, target); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Entrypoint propagated", "target", target)

	return nil
}

// checkShellSyntax runs a parse-only bash pass over a propagated script.
func checkShellSyntax(ctx context.Context, scriptPath string) error {
	cmd := exec.CommandContext(ctx, "bash", "-n", scriptPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("bash -n %s: %s: %w", scriptPath, strings.TrimSpace(string(output)), err)
	}

	return nil
}

// runServices applies one systemctl action to every configured unit.
func (a *agent) runServices(ctx context.Context, action string) error {
	for _, unit := range a.cfg.Services {
		cmd := exec.CommandContext(ctx, "systemctl", action, unit)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("systemctl %s %s: %s: %w", action, unit, strings.TrimSpace(string(output)), err)
		}

		logger.InfoKV(ctx, "Service action applied", "action", action, "unit", unit)
	}

	return nil
}

// sweepBackups removes all but the newest retained backups. The sweep is best
// effort and never fails an otherwise successful install. Directories whose
// names do not end in a backup timestamp are left alone.
func sweepBackups(ctx context.Context, backupDir string) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnKV(ctx, "Backup sweep skipped", "error", err)
		}

		return
	}

	type backup struct {
		name string
		at   time.Time
	}

	backups := make([]backup, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		at, ok := backupTimestamp(entry.Name())
		if !ok {
			continue
		}

		backups = append(backups, backup{name: entry.Name(), at: at})
	}

	if len(backups) <= keptBackups {
		return
	}

	slices.SortFunc(backups, func(left, right backup) int {
		return right.at.Compare(left.at)
	})

	for _, old := range backups[keptBackups:] {
		oldPath := filepath.Join(backupDir, old.name)

		if err := os.RemoveAll(oldPath); err != nil {
			logger.WarnKV(ctx, "Failed to remove old backup", "path", oldPath, "error", err)

			continue
		}

		logger.InfoKV(ctx, "Old backup removed", "path", oldPath)
	}
}

// backupTimestamp extracts the displacement timestamp from a backup name.
func backupTimestamp(name string) (time.Time, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return time.Time{}, false
	}

	at, err := time.Parse(backupTimestampLayout, name[idx+1:])
	if err != nil {
		return time.Time{}, false
	}

	return at, true
}
