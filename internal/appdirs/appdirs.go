package appdirs

import (
	"os"
	"path/filepath"
)

const (
	appDirName = "studybench"
)

func DataDir() (string, error) {
	if override := os.Getenv("STUDYBENCH_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "studybench.db")
}
