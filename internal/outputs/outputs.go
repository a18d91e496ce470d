package outputs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"reelforge/internal/config"
	"reelforge/internal/fileutil"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

// Artifact describes a finalized render output.
type Artifact struct {
	Name      string
	Path      string
	SizeBytes int64
	ModTime   time.Time
}

// Manager owns the output directory: finalizing renders into it, resolving
// artifacts for download, and evicting old outputs per the retention policy.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewManager constructs an output manager.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{cfg: cfg, logger: logging.NewComponentLogger(logger, "outputs")}
}

// Finalize moves a staged render into the output directory under the job
// token's name. The move lands on a hidden temp name first and is renamed into
// place, so a reader never observes a partially written artifact.
func (m *Manager) Finalize(ctx context.Context, token, stagedPath string) (Artifact, error) {
	if strings.TrimSpace(token) == "" {
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize", "job token required", nil)
	}
	info, err := os.Stat(stagedPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize",
			fmt.Sprintf("staged render missing at %s", stagedPath), err)
	}
	if info.IsDir() || info.Size() == 0 {
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize",
			fmt.Sprintf("staged render at %s is empty", stagedPath), nil)
	}

	name := ArtifactName(token)
	finalPath := filepath.Join(m.cfg.Paths.OutputDir, name)
	tempPath := filepath.Join(m.cfg.Paths.OutputDir, "."+name+".partial")

	if err := fileutil.MoveFile(stagedPath, tempPath); err != nil {
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize", "stage into output directory", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize", "publish artifact", err)
	}

	finalInfo, err := os.Stat(finalPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrRender, "outputs", "finalize", "stat artifact", err)
	}

	artifact := Artifact{
		Name:      name,
		Path:      finalPath,
		SizeBytes: finalInfo.Size(),
		ModTime:   finalInfo.ModTime(),
	}
	m.logger.InfoContext(ctx, "finalized output",
		"artifact", artifact.Name,
		"size", humanize.Bytes(uint64(artifact.SizeBytes)))
	return artifact, nil
}

// ArtifactName returns the output filename used for a job token.
func ArtifactName(token string) string {
	return "reel_" + token + ".mp4"
}

// Resolve returns the artifact for a job token, or a not found error when no
// finalized output exists (including after retention eviction).
func (m *Manager) Resolve(token string) (Artifact, error) {
	path := filepath.Join(m.cfg.Paths.OutputDir, ArtifactName(token))
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, services.Wrap(services.ErrNotFound, "outputs", "resolve",
				fmt.Sprintf("no artifact for job %s", token), nil)
		}
		return Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	return Artifact{Name: ArtifactName(token), Path: path, SizeBytes: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns finalized artifacts ordered oldest first. Hidden temp files
// from in-flight finalizations are skipped.
func (m *Manager) List() ([]Artifact, error) {
	entries, err := os.ReadDir(m.cfg.Paths.OutputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:      entry.Name(),
			Path:      filepath.Join(m.cfg.Paths.OutputDir, entry.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime.Before(artifacts[j].ModTime)
	})
	return artifacts, nil
}

// TotalBytes sums the size of all finalized artifacts.
func (m *Manager) TotalBytes() (int64, error) {
	artifacts, err := m.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, artifact := range artifacts {
		total += artifact.SizeBytes
	}
	return total, nil
}

// ClearStorage removes every uploaded asset and finalized output. Music and
// font libraries are preserved. Returns the number of files removed and the
// bytes reclaimed.
func (m *Manager) ClearStorage(ctx context.Context) (int, int64, error) {
	var removed int
	var freed int64
	for _, dir := range []string{m.cfg.Paths.UploadDir, m.cfg.Paths.OutputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, freed, fmt.Errorf("read directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err == nil {
				freed += info.Size()
			}
			if err := os.Remove(path); err != nil {
				return removed, freed, fmt.Errorf("remove %s: %w", path, err)
			}
			removed++
		}
	}
	m.logger.InfoContext(ctx, "cleared storage",
		"files", removed,
		"freed", humanize.Bytes(uint64(freed)))
	return removed, freed, nil
}
