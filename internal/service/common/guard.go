//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/stream-notifier/internal/logger"
)

// pidFilePermissions allows other users to see which process holds the guard.
const pidFilePermissions = 0o644

// ErrAlreadyRunning is returned when a live watcher already holds the pid file.
var ErrAlreadyRunning = errors.New("another instance is already running")

// InstanceGuard keeps two watchers from sharing one state file.
type InstanceGuard struct {
	// path is the pid file location.
	path string
	// pid is the process id written to the pid file.
	pid int
	// findProcess looks a process up by id; it returns nil when there is none.
	findProcess func(pid int) (ps.Process, error)
}

// PIDFilePath returns the pid file that guards the given state file.
func PIDFilePath(statePath string) string {
	return statePath + ".pid"
}

// NewInstanceGuard creates a guard for the pid file at path.
func NewInstanceGuard(path string) *InstanceGuard {
	return &InstanceGuard{
		path:        path,
		pid:         os.Getpid(),
		findProcess: ps.FindProcess,
	}
}

// Path returns the pid file location.
func (g *InstanceGuard) Path() string {
	return g.path
}

// Acquire writes the pid file. It fails with ErrAlreadyRunning when the file
// names a live process running the same executable; any other leftover is replaced.
func (g *InstanceGuard) Acquire(ctx context.Context) error {
	raw, err := os.ReadFile(g.path)

	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read pid file %s: %w", g.path, err)
	default:
		if err = g.checkHolder(strings.TrimSpace(string(raw))); err != nil {
			return err
		}

		logger.WarnKV(ctx, "Replacing stale pid file", "path", g.path, "pid", strings.TrimSpace(string(raw)))
	}

	if err = os.WriteFile(g.path, []byte(strconv.Itoa(g.pid)+"\n"), pidFilePermissions); err != nil {
		return fmt.Errorf("write pid file %s: %w", g.path, err)
	}

	return nil
}

// Release removes the pid file if it still names this process.
func (g *InstanceGuard) Release() error {
	raw, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read pid file %s: %w", g.path, err)
	}

	if strings.TrimSpace(string(raw)) != strconv.Itoa(g.pid) {
		return nil
	}

	if err = os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file %s: %w", g.path, err)
	}

	return nil
}

// checkHolder returns ErrAlreadyRunning if the recorded pid belongs to a live watcher.
func (g *InstanceGuard) checkHolder(recorded string) error {
	pid, err := strconv.Atoi(recorded)
	if err != nil || pid <= 0 || pid == g.pid {
		return nil
	}

	holder, err := g.findProcess(pid)
	if err != nil {
		return fmt.Errorf("look up process %d: %w", pid, err)
	}

	if holder == nil {
		return nil
	}

	self, err := g.findProcess(g.pid)
	if err != nil {
		return fmt.Errorf("look up own process: %w", err)
	}

	if self == nil || holder.Executable() != self.Executable() {
		return nil
	}

	return fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, pid, g.path)
}
