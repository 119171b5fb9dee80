// Package config loads the daemon's YAML configuration: the folders to
// watch and the chunking/embedding settings that apply to them.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultExtensions is the fallback per-folder extension set used when
// neither a folder nor the top-level settings specify one.
var DefaultExtensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".pptx", ".xlsx"}

// DefaultConfigPath is where the daemon looks for its config file when
// none is given on the command line.
const DefaultConfigPath = "~/.config/search-daemon/config.yaml"

// Folder is one watched directory tree and the extensions eligible
// for indexing within it.
type Folder struct {
	Path       string
	Extensions []string
}

// Settings are the embedding/chunking knobs shared by every folder
// unless a folder overrides its extension set.
type Settings struct {
	Model        string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Extensions   []string
	// MaxFileKB skips indexing any file larger than this many kilobytes.
	// 0 disables the check.
	MaxFileKB int
}

// Config is the fully-resolved daemon configuration.
type Config struct {
	Folders  []Folder
	Settings Settings
}

// rawConfig mirrors the on-disk YAML shape before defaults are applied.
type rawConfig struct {
	Folders []struct {
		Path       string   `yaml:"path"`
		Extensions []string `yaml:"extensions"`
	} `yaml:"folders"`
	Settings struct {
		Model     string `yaml:"model"`
		ChunkSize int    `yaml:"chunk_size"`
		// ChunkOverlap is a pointer so Load can tell "omitted" from an
		// explicit 0, which spec.md §6 allows as a valid overlap.
		ChunkOverlap *int     `yaml:"chunk_overlap"`
		BatchSize    int      `yaml:"batch_size"`
		Extensions   []string `yaml:"extensions"`
		MaxFileKB    int      `yaml:"max_file_kb"`
	} `yaml:"settings"`
}

// Load reads and validates the config file at path (or DefaultConfigPath
// if path is empty). A missing file, an empty folders list, or a folder
// that doesn't resolve to a directory are all fatal configuration errors.
func Load(path string) (*Config, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s: %w", resolved, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", resolved, err)
	}

	settings := Settings{
		Model:        "all-MiniLM-L6-v2",
		ChunkSize:    1000,
		ChunkOverlap: 200,
		BatchSize:    32,
		Extensions:   append([]string(nil), DefaultExtensions...),
	}
	if raw.Settings.Model != "" {
		settings.Model = raw.Settings.Model
	}
	if raw.Settings.ChunkSize > 0 {
		settings.ChunkSize = raw.Settings.ChunkSize
	}
	if raw.Settings.ChunkOverlap != nil {
		settings.ChunkOverlap = *raw.Settings.ChunkOverlap
	}
	if raw.Settings.BatchSize > 0 {
		settings.BatchSize = raw.Settings.BatchSize
	}
	if len(raw.Settings.Extensions) > 0 {
		settings.Extensions = raw.Settings.Extensions
	}
	settings.MaxFileKB = raw.Settings.MaxFileKB

	if settings.ChunkOverlap >= settings.ChunkSize {
		return nil, fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", settings.ChunkOverlap, settings.ChunkSize)
	}

	if len(raw.Folders) == 0 {
		return nil, fmt.Errorf("no folders configured in %s", resolved)
	}

	folders := make([]Folder, 0, len(raw.Folders))
	for _, f := range raw.Folders {
		abs, err := resolveFolder(f.Path)
		if err != nil {
			return nil, err
		}
		exts := f.Extensions
		if len(exts) == 0 {
			exts = settings.Extensions
		}
		folders = append(folders, Folder{Path: abs, Extensions: normalizeExtensions(exts)})
	}

	return &Config{Folders: folders, Settings: settings}, nil
}

// resolveFolder expands "~" and resolves the path to an absolute,
// symlink-resolved directory, failing if it isn't one.
func resolveFolder(p string) (string, error) {
	expanded, err := expandPath(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("folder does not exist: %s: %w", expanded, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", expanded)
	}
	real, err := filepath.EvalSymlinks(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", expanded, err)
	}
	return real, nil
}

// expandPath expands a leading "~" to the current user's home directory
// and makes the result absolute.
func expandPath(p string) (string, error) {
	if p == "" {
		p = DefaultConfigPath
	}
	return ExpandPath(p)
}

// ExpandPath expands a leading "~" in p to the current user's home
// directory and makes the result absolute. It is shared by the cache,
// status, and reindex packages so every component resolves its
// ~/.cache/searchd/... paths the same way.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		u, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(u.HomeDir, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", p, err)
	}
	return abs, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.ToLower(e)
	}
	return out
}
