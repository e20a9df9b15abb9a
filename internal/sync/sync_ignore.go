package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/sitedeploy/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the root of the source dir when present. It is never uploaded.
const IgnoreFileName = ".sitedeployignore"

type SyncIgnoreList struct {
	baseDir string
	lines   []string
	ignore  *gitignore.GitIgnore
}

// NewSyncIgnoreList takes gitignore style lines from config; the ignore file adds more on Load.
func NewSyncIgnoreList(baseDir string, lines []string) *SyncIgnoreList {
	return &SyncIgnoreList{baseDir: baseDir, lines: lines}
}

func (s *SyncIgnoreList) Load() {
	ignoreLines := append([]string{IgnoreFileName}, s.lines...)
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether relPath (slash separated, relative to baseDir) is excluded.
func (s *SyncIgnoreList) ShouldIgnore(relPath string) bool {
	if s.ignore == nil {
		return false
	}
	return s.ignore.MatchesPath(relPath)
}
