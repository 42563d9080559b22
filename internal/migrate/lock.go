package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/teambeacon/orgdex/pkg/types"
)

// lockFileName is the exclusive marker dropped in the migration directory
// while a migration runs. This guards against two processes migrating the
// same database at once; it is not a distributed lock.
const lockFileName = ".migration.lock"

// lockInfo identifies the lock holder for error messages and cleanup.
type lockInfo struct {
	Holder     string    `json:"holder"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type fileLock struct {
	path string
}

// acquireLock creates the marker file exclusively. If it already exists,
// the error names the current holder and wraps ErrMigrationLocked.
func acquireLock(dir string) (*fileLock, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		return nil, lockedError(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration lock: %w", err)
	}

	hostname, herr := os.Hostname()
	if herr != nil {
		hostname = "unknown"
	}
	info := lockInfo{
		Holder:     uuid.NewString(),
		Hostname:   hostname,
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}
	if err := json.NewEncoder(f).Encode(&info); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write migration lock: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write migration lock: %w", err)
	}
	return &fileLock{path: path}, nil
}

// lockedError reads the existing marker to name the holder. A marker that
// cannot be parsed still blocks; it just names less.
func lockedError(path string) error {
	data, err := os.ReadFile(path)
	if err == nil {
		var info lockInfo
		if json.Unmarshal(data, &info) == nil && info.PID != 0 {
			return fmt.Errorf("held by pid %d on %s since %s (remove %s if that process is gone): %w",
				info.PID, info.Hostname, info.AcquiredAt.Format(time.RFC3339), path, types.ErrMigrationLocked)
		}
	}
	return fmt.Errorf("lock file %s exists: %w", path, types.ErrMigrationLocked)
}

func (l *fileLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove migration lock: %w", err)
	}
	return nil
}
