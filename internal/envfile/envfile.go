package envfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

type Result struct {
	Path   string
	Loaded bool
	Keys   int
	Err    error
}

// Load resolves a .env file (STUDYBENCH_ENV_PATH override, otherwise
// walking up from the working directory) and loads it without
// clobbering variables already set in the process environment.
func Load() Result {
	if override := strings.TrimSpace(os.Getenv("STUDYBENCH_ENV_PATH")); override != "" {
		return LoadPath(override)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Result{Err: err}
	}
	path := findUpwards(cwd, ".env")
	if path == "" {
		return Result{}
	}
	return LoadPath(path)
}

func LoadPath(path string) Result {
	res := Result{Path: path}
	values, err := godotenv.Read(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Loaded = true
	for key, value := range values {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			res.Err = err
			return res
		}
		res.Keys++
	}
	return res
}

// Bool reads an environment variable as a boolean flag.
func Bool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func findUpwards(start, filename string) string {
	dir := start
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
