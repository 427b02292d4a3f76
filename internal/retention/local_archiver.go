package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// LocalFileArchiver writes pruned tasks as JSONL files to a local
// directory, one file per retention cycle:
//
//	{basePath}/tasks/2026-08-29T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver. An empty
// basePath defaults to "~/.agentdeck/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/agentdeck/archive"
		} else {
			basePath = filepath.Join(home, ".agentdeck", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) ArchiveTasks(_ context.Context, tasks []models.Task) (string, error) {
	dir := filepath.Join(a.basePath, "tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			return "", fmt.Errorf("encode task %s: %w", t.ID, err)
		}
	}

	log.Debug().Str("path", fpath).Int("count", len(tasks)).Msg("tasks archived to local file")
	return fpath, nil
}
