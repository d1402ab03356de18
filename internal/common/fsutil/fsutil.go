package fsutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// Other paths are returned unchanged.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")), nil
}

// IsRemote reports whether p is an http(s) URL rather than a filesystem path.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// IsRegularFile reports whether p exists and is a regular file.
func IsRegularFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// ResolveExecutable turns a configured worker binary into an absolute path.
// Bare names are looked up in PATH; everything else is home-expanded and must
// be an executable file.
func ResolveExecutable(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty executable name")
	}
	if !strings.ContainsRune(name, filepath.Separator) && !strings.HasPrefix(name, "~") {
		p, err := exec.LookPath(name)
		if err != nil {
			return "", err
		}
		return p, nil
	}
	p, err := ExpandHome(name)
	if err != nil {
		return "", err
	}
	p, err = filepath.Abs(p)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() || fi.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%s is not an executable file", p)
	}
	return p, nil
}
