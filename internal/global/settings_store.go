package global

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	settingsFileName  = "config.toml"
	defaultServerURL  = "ws://127.0.0.1:8080/ws"
	defaultAPIBackend = "websocket"
)

type SearchSettings struct {
	FindUncollapsedAncestor bool `toml:"find_uncollapsed_ancestor"`
}

type Settings struct {
	ServerURL  string         `toml:"server_url"`
	APIBackend string         `toml:"api_backend"`
	Search     SearchSettings `toml:"search"`
}

type SettingsStore struct {
	dir string
}

func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{dir: dir}
}

func (s *SettingsStore) Path() string {
	return filepath.Join(s.dir, settingsFileName)
}

// LoadOrInit reads the settings file, writing one with defaults when it
// does not exist yet.
func (s *SettingsStore) LoadOrInit() (Settings, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Settings{}, err
	}

	path := s.Path()
	if b, err := os.ReadFile(path); err == nil {
		var cfg Settings
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Settings{}, err
		}
		return normalizeSettings(cfg), nil
	} else if !os.IsNotExist(err) {
		return Settings{}, err
	}

	cfg := normalizeSettings(Settings{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s *SettingsStore) Save(cfg Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), normalizeSettings(cfg))
}

func normalizeSettings(cfg Settings) Settings {
	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	cfg.APIBackend = strings.ToLower(strings.TrimSpace(cfg.APIBackend))
	if cfg.APIBackend == "" {
		cfg.APIBackend = defaultAPIBackend
	}
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
