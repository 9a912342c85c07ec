// Package env composes the environment the bridge process is spawned with.
package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source lists where bridge variables come from. Later sources override
// earlier ones: OS environment (when UseOS), then Files in order, then Vars.
type Source struct {
	UseOS bool     `mapstructure:"use_os_env"`
	Files []string `mapstructure:"env_files"`
	Vars  []string `mapstructure:"env"` // "KEY=VALUE"
}

// Empty reports whether s would produce an inherited environment.
func (s Source) Empty() bool {
	return !s.UseOS && len(s.Files) == 0 && len(s.Vars) == 0
}

// Environ merges s into a "KEY=VALUE" list with ${VAR} references expanded
// against the merged map. It returns nil when s is empty so that the child
// inherits the parent environment unchanged.
func (s Source) Environ() ([]string, error) {
	if s.Empty() {
		return nil, nil
	}
	m := make(map[string]string)
	if s.UseOS {
		putAll(m, os.Environ())
	}
	for _, p := range s.Files {
		pairs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		putAll(m, pairs)
	}
	putAll(m, s.Vars)

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile parses a .env file with KEY=VALUE lines. Blank lines and lines
// starting with # are ignored.
func LoadFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}

func putAll(m map[string]string, pairs []string) {
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
}

// expand replaces ${KEY} for every key in m. No recursion.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
