package publisher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
)

// unknownCommitHash is recorded when the source tree is not a git checkout.
const unknownCommitHash = "unknown"

// resolveVersion picks the version to publish: an explicit override wins,
// then an exact git tag at HEAD, then a synthesized date-based version.
func resolveVersion(ctx context.Context, override, sourceDir string) (string, error) {
	if override != "" {
		if err := fleet.ValidateVersion(override); err != nil {
			return "", err
		}

		return override, nil
	}

	tag, tagErr := gitOutput(ctx, sourceDir, "describe", "--tags", "--exact-match")
	if tagErr == nil && tag != "" {
		if err := fleet.ValidateVersion(tag); err != nil {
			return "", fmt.Errorf("git tag %q: %w", tag, err)
		}

		logger.InfoKV(ctx, "Using exact git tag as version", "version", tag)

		return tag, nil
	}

	version := synthesizeVersion(time.Now().UTC(), commitCount(ctx, sourceDir))
	logger.InfoKV(ctx, "Synthesized date-based version", "version", version)

	return version, nil
}

// synthesizeVersion renders v<YYYY.MM.DD>.<NN> with NN = count modulo 100.
// Same-day collisions between publishers are caught by the coordinator's
// conflict check at registration.
func synthesizeVersion(now time.Time, count int) string {
	return fmt.Sprintf("v%s.%02d", now.Format("2006.01.02"), count%100)
}

// commitCount returns the number of commits at HEAD, or zero when the source
// tree is not a usable git checkout.
func commitCount(ctx context.Context, dir string) int {
	out, err := gitOutput(ctx, dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0
	}

	count, err := strconv.Atoi(out)
	if err != nil {
		return 0
	}

	return count
}

// commitHash returns the full hash at HEAD, or unknownCommitHash.
func commitHash(ctx context.Context, dir string) string {
	hash, err := gitOutput(ctx, dir, "rev-parse", "HEAD")
	if err != nil || hash == "" {
		return unknownCommitHash
	}

	return hash
}

// gitOutput runs one git command in dir and returns its trimmed stdout.
func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	command := exec.CommandContext(ctx, "git", args...)
	command.Dir = dir

	out, err := command.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(string(out)), nil
}
