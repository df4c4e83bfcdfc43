package secrets

import (
	"fmt"

	"github.com/joho/godotenv"
)

// FileLoader returns a Loader that reads KEY=VALUE pairs from path, in the
// format written by secret mounts and .env files. The process environment
// is not modified.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read secrets file %s: %w", path, err)
		}
		return vals, nil
	}
}
