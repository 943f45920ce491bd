package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultSystem returns the platform tag used to select keyword model files:
// "raspberry-pi" on ARM machines, "linux" otherwise.
func DefaultSystem() string {
	arch := runtime.GOARCH
	if strings.Contains(arch, "arm") || strings.Contains(arch, "aarch") {
		return "raspberry-pi"
	}
	return "linux"
}

// Discover scans a data directory for engine resources and keyword models
// and builds a Registry from them. The expected layout:
//
//	<dataDir>/lib/common/porcupine_params_<lang>.pv
//	<dataDir>/resources/keyword_files_<lang>/<lang>/<platform>/<name>_<system>.ppn
//
// The language of an engine resource is the last underscore-separated token
// of its stem; a keyword's language is its grandparent directory name and
// its name is the stem minus the trailing _<system> suffix. Keyword files
// whose system tag does not match system are skipped.
func Discover(dataDir, system string) (*Registry, error) {
	if system == "" {
		system = DefaultSystem()
	}

	libs := make(map[string]string)
	libGlob := filepath.Join(dataDir, "lib", "common", "*.pv")
	libPaths, err := filepath.Glob(libGlob)
	if err != nil {
		return nil, fmt.Errorf("registry: glob %q: %w", libGlob, err)
	}
	for _, path := range libPaths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		parts := strings.Split(stem, "_")
		lang := parts[len(parts)-1]
		libs[lang] = path
	}

	keywords := make(map[string]Keyword)
	resourceRoot := filepath.Join(dataDir, "resources")
	walkErr := filepath.WalkDir(resourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".ppn" {
			return nil
		}

		stem := strings.TrimSuffix(filepath.Base(path), ".ppn")
		idx := strings.LastIndex(stem, "_")
		if idx < 0 {
			slog.Debug("skipping keyword file without system suffix", "path", path)
			return nil
		}
		if stem[idx+1:] != system {
			return nil
		}

		lang := filepath.Base(filepath.Dir(filepath.Dir(path)))
		name := stem[:idx]
		keywords[name] = Keyword{Language: lang, Name: name, ModelPath: path}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("registry: scan %q: %w", resourceRoot, walkErr)
	}

	slog.Info("discovered wake resources",
		"data_dir", dataDir,
		"system", system,
		"languages", len(libs),
		"keywords", len(keywords),
	)

	return New(libs, keywords)
}
