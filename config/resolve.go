package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// maxAscend bounds how many parent directories ResolveResource walks.
const maxAscend = 10

// LoadDotEnv seeds the process environment from a .env file. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ResolveResource finds a model or classifier file. Absolute paths and paths
// that exist relative to the working directory are returned unchanged.
// Otherwise the directory of the executable and its parents are searched.
func ResolveResource(name string) (string, error) {
	name, err := ExpandHome(name)
	if err != nil {
		return "", err
	}
	if fileExists(name) {
		return name, nil
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("resource %q not found", name)
	}

	var tried []string
	var starts []string
	if exePath, err := os.Executable(); err == nil {
		starts = append(starts, filepath.Dir(exePath))
	}
	if cwd, err := os.Getwd(); err == nil {
		starts = append(starts, cwd)
	}

	checked := make(map[string]bool)
	for _, start := range starts {
		cur := start
		for i := 0; i < maxAscend; i++ {
			if cur == "" || checked[cur] {
				break
			}
			checked[cur] = true
			tried = append(tried, cur)
			if p := filepath.Join(cur, name); fileExists(p) {
				return p, nil
			}
			parent := filepath.Dir(cur)
			if parent == cur {
				break
			}
			cur = parent
		}
	}

	return "", fmt.Errorf("resource %q not found, tried:\n  - %s", name, strings.Join(tried, "\n  - "))
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
