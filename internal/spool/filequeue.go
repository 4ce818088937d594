package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileQueue is a Queue backed by per-job control files. The platform port
// monitor drops one "<id>.json" file per queued job into the control
// directory; removing a job deletes its control file. This keeps the poller
// free of OS print APIs while behaving like a real queue.
type FileQueue struct {
	dir string
}

// controlFile is the on-disk metadata format for one queued job.
type controlFile struct {
	DocumentName string `json:"document_name"`
	UserName     string `json:"user_name"`
	MachineName  string `json:"machine_name"`
	PageCount    int    `json:"page_count"`
}

// NewFileQueue creates a FileQueue over the given control directory.
func NewFileQueue(dir string) (*FileQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue control directory: %w", err)
	}
	return &FileQueue{dir: dir}, nil
}

// Jobs enumerates queued jobs from the control directory. Files that are
// not "<id>.json" or do not parse are skipped; a half-written control file
// will be picked up on the next poll.
func (q *FileQueue) Jobs(_ context.Context) ([]QueueJob, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate queue: %w", err)
	}

	var jobs []QueueJob
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		idStr := strings.TrimSuffix(entry.Name(), ".json")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(q.dir, entry.Name()))
		if err != nil {
			continue
		}

		var cf controlFile
		if err := json.Unmarshal(data, &cf); err != nil {
			continue
		}

		jobs = append(jobs, QueueJob{
			ID:           uint32(id),
			DocumentName: cf.DocumentName,
			UserName:     cf.UserName,
			MachineName:  cf.MachineName,
			PageCount:    cf.PageCount,
		})
	}
	return jobs, nil
}

// Remove deletes the job's control file. Removing a job that is already
// gone is not an error.
func (q *FileQueue) Remove(_ context.Context, id uint32) error {
	path := filepath.Join(q.dir, fmt.Sprintf("%d.json", id))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove job %d from queue: %w", id, err)
	}
	return nil
}
