package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const socketName = "murmur.sock"

// ErrAlreadyRunning is returned by Acquire when a live owner answers on the socket.
var ErrAlreadyRunning = errors.New("murmur dictation already running")

// SocketPath returns $XDG_RUNTIME_DIR/murmur.sock, or a per-user directory
// under the temp dir when no runtime dir is set.
func SocketPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("murmur-%d", os.Getuid()), socketName)
}

// AcquireOptions tunes stale-owner detection.
type AcquireOptions struct {
	LivenessTimeout time.Duration
	// Retries is the number of extra binds allowed after the first stale
	// socket is cleared.
	Retries int
	// OnStale runs after a dead owner's socket file is removed.
	OnStale func(ctx context.Context, path string)
}

// Owner is the listening end of the control socket. Close removes the file.
type Owner struct {
	net.Listener
	path string
	once sync.Once
	err  error
}

// Path returns the socket file path.
func (o *Owner) Path() string { return o.path }

// Close stops listening and unlinks the socket. It is safe to call twice.
func (o *Owner) Close() error {
	o.once.Do(func() {
		o.err = o.Listener.Close()
		if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) && o.err == nil {
			o.err = err
		}
	})
	return o.err
}

// Acquire makes this process the dictation owner. A socket nobody answers on
// is removed and the bind retried; a live owner yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if err := ensurePrivateDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			if err := os.Chmod(path, 0o600); err != nil {
				_ = listener.Close()
				return nil, fmt.Errorf("restrict socket %s: %w", path, err)
			}
			return &Owner{Listener: listener, path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		if attempt > opts.Retries {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d attempt(s)", path, attempt)
		}

		if err := clearStale(ctx, path, opts.LivenessTimeout); err != nil {
			return nil, err
		}
		if opts.OnStale != nil {
			opts.OnStale(ctx, path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
		}
	}
}

// clearStale removes path when it is a socket that no owner answers on.
func clearStale(ctx context.Context, path string, livenessTimeout time.Duration) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect socket %s: %w", path, err)
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket; refusing to remove it", path)
	}

	alive, err := Probe(ctx, path, livenessTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("check existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

// ensurePrivateDir creates dir if needed and rejects directories other users
// can reach or that belong to someone else.
func ensurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure socket dir: %w", err)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("inspect socket dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("socket dir %s is not a directory", dir)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("socket dir %s is accessible by other users (mode %o)", dir, info.Mode().Perm())
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Getuid() {
		return fmt.Errorf("socket dir %s is owned by uid %d", dir, st.Uid)
	}
	return nil
}
