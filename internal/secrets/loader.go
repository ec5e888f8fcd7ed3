package secrets

import (
	"fmt"
	"maps"
	"os"
	"strings"
)

// Static returns a Loader that always yields a copy of vals.
func Static(vals map[string]string) Loader {
	return func() (map[string]string, error) {
		return maps.Clone(vals), nil
	}
}

// FileLoader returns a Loader that reads each key from its file, trimming
// surrounding whitespace. Empty paths are skipped; a missing or unreadable
// file is an error so a bad rotation never blanks a secret.
func FileLoader(files map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(files))
		for key, path := range files {
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", key, err)
			}
			vals[key] = strings.TrimSpace(string(data))
		}
		return vals, nil
	}
}

// Chain merges loaders in order; later loaders override earlier ones.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string)
		for _, load := range loaders {
			part, err := load()
			if err != nil {
				return nil, err
			}
			maps.Copy(vals, part)
		}
		return vals, nil
	}
}
