// Package paths provides XDG-compliant path resolution for repostore.
//
// Resolution order:
// 1. REPOSTORE_HOME (portable root) → $REPOSTORE_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/repostore
// 3. Platform defaults → ~/.config/repostore, ~/.local/state/repostore
package paths

import (
	"os"
	"path/filepath"
)

const (
	appName  = "repostore"
	homeEnv  = "REPOSTORE_HOME"
	daemonID = "repostored"
)

// base resolves one XDG base directory: the portable root wins, then the XDG
// variable, then the fallback below the user's home directory.
func base(sub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
}

// ConfigDir returns the configuration directory searched for repostore.yml.
func ConfigDir() string {
	return base("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory.
// Used for the pid file and logs.
func StateDir() string {
	return base("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), daemonID+".sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), daemonID+".pid")
}

// LogFilePath returns the default daemon log file.
func LogFilePath() string {
	return filepath.Join(StateDir(), "logs", daemonID+".log")
}

// EnsureDirs creates all repostore directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
