package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/openmined/sitedeploy/internal/utils"
)

type SyncLocalState struct {
	rootDir string
	prefix  string
	ignore  *SyncIgnoreList
}

func NewSyncLocalState(rootDir, prefix string, ignore *SyncIgnoreList) *SyncLocalState {
	return &SyncLocalState{
		rootDir: rootDir,
		prefix:  prefix,
		ignore:  ignore,
	}
}

// Scan fingerprints every regular file under the root, in lexical walk order.
// Directories, symlinks and ignored paths are skipped.
func (s *SyncLocalState) Scan() ([]*LocalAsset, error) {
	if !utils.DirExists(s.rootDir) {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceDir, s.rootDir)
	}

	var assets []*LocalAsset
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
			slog.Debug("sync", "op", "ignore", "path", relPath)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat '%s': %w", relPath, err)
		}

		fingerprint, err := FileFingerprint(path)
		if err != nil {
			return err
		}

		assets = append(assets, &LocalAsset{
			AbsPath:     path,
			Key:         ObjectKey(s.prefix, relPath),
			Size:        info.Size(),
			Fingerprint: fingerprint,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	return assets, nil
}
