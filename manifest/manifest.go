// Package manifest handles storyvm.toml configuration.
package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chazu/storyvm/save"
	"github.com/chazu/storyvm/vm"
	"github.com/pkg/errors"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "storyvm.toml"

// Manifest represents a storyvm.toml configuration.
type Manifest struct {
	Story   Story         `toml:"story"`
	Machine MachineConfig `toml:"machine"`
	Log     LogConfig     `toml:"log"`
	Save    SaveConfig    `toml:"save"`
	Server  ServerConfig  `toml:"server"`

	// Dir is the directory containing the storyvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Story names the story file to play.
type Story struct {
	Path string `toml:"path"`
}

// MachineConfig holds the interpreter limits.
type MachineConfig struct {
	MaxCallDepth int   `toml:"max_call_depth"`
	MaxEvalStack int   `toml:"max_eval_stack"`
	UndoDepth    *int  `toml:"undo_depth"`
	ScreenWidth  int   `toml:"screen_width"`
	ScreenHeight int   `toml:"screen_height"`
	RandomSeed   int64 `toml:"random_seed"`
	Trace        bool  `toml:"trace"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// SaveConfig selects where save games go.
type SaveConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	Slot    string `toml:"slot"`
}

// ServerConfig configures the play server.
type ServerConfig struct {
	Addr        string        `toml:"addr"`
	JWTSecret   string        `toml:"jwt_secret"`
	TokenKey    string        `toml:"token_key"` // enables /token for holders of this key
	TokenTTL    time.Duration `toml:"token_ttl"`
	MaxSessions int           `toml:"max_sessions"`
}

// Defaults.
const (
	DefaultScreenWidth  = 80
	DefaultScreenHeight = 24
	DefaultAddr         = "127.0.0.1:8080"
	DefaultTokenTTL     = 24 * time.Hour
	DefaultMaxSessions  = 64
)

// Default returns a manifest with every default filled in.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a storyvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", dir)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a storyvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Write stores m as storyvm.toml in dir.
func Write(dir string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	path := filepath.Join(dir, FileName)
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0644), "write %s", path)
}

func (m *Manifest) applyDefaults() {
	if m.Machine.MaxCallDepth == 0 {
		m.Machine.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if m.Machine.MaxEvalStack == 0 {
		m.Machine.MaxEvalStack = vm.DefaultMaxEvalStack
	}
	if m.Machine.UndoDepth == nil {
		depth := vm.DefaultUndoDepth
		m.Machine.UndoDepth = &depth
	}
	if m.Machine.ScreenWidth == 0 {
		m.Machine.ScreenWidth = DefaultScreenWidth
	}
	if m.Machine.ScreenHeight == 0 {
		m.Machine.ScreenHeight = DefaultScreenHeight
	}
	if m.Save.Backend == "" {
		m.Save.Backend = save.BackendMemory
	}
	if m.Save.Slot == "" {
		m.Save.Slot = save.DefaultSlot
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Server.TokenTTL == 0 {
		m.Server.TokenTTL = DefaultTokenTTL
	}
	if m.Server.MaxSessions == 0 {
		m.Server.MaxSessions = DefaultMaxSessions
	}
}

// Validate reports the first setting that cannot work.
func (m *Manifest) Validate() error {
	switch {
	case m.Machine.MaxCallDepth < 1:
		return errors.Errorf("machine.max_call_depth must be positive, got %d", m.Machine.MaxCallDepth)
	case m.Machine.MaxEvalStack < 1:
		return errors.Errorf("machine.max_eval_stack must be positive, got %d", m.Machine.MaxEvalStack)
	case m.Machine.UndoDepth != nil && *m.Machine.UndoDepth < 0:
		return errors.Errorf("machine.undo_depth cannot be negative, got %d", *m.Machine.UndoDepth)
	case m.Machine.ScreenWidth < 1 || m.Machine.ScreenWidth > 255:
		return errors.Errorf("machine.screen_width must be 1-255, got %d", m.Machine.ScreenWidth)
	case m.Machine.ScreenHeight < 1 || m.Machine.ScreenHeight > 255:
		return errors.Errorf("machine.screen_height must be 1-255, got %d", m.Machine.ScreenHeight)
	case m.Log.Verbosity < -4 || m.Log.Verbosity > 4:
		return errors.Errorf("log.verbosity must be between -4 and 4, got %d", m.Log.Verbosity)
	case m.Server.MaxSessions < 1:
		return errors.Errorf("server.max_sessions must be positive, got %d", m.Server.MaxSessions)
	case m.Server.TokenTTL < 0:
		return errors.Errorf("server.token_ttl cannot be negative, got %s", m.Server.TokenTTL)
	case m.Server.TokenKey != "" && m.Server.JWTSecret == "":
		return errors.New("server.token_key needs server.jwt_secret")
	}
	switch m.Save.Backend {
	case save.BackendMemory:
	case save.BackendSQLite, save.BackendBolt:
		if m.Save.Path == "" {
			return errors.Errorf("save.path is required for the %s backend", m.Save.Backend)
		}
	default:
		return errors.Errorf("save.backend must be memory, sqlite or bolt, got %q", m.Save.Backend)
	}
	return nil
}

// resolve makes path absolute against the manifest directory.
func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// StoryPath returns the absolute story file path, or "" if none is set.
func (m *Manifest) StoryPath() string { return m.resolve(m.Story.Path) }

// SavePath returns the absolute save store path.
func (m *Manifest) SavePath() string { return m.resolve(m.Save.Path) }

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string { return m.resolve(m.Log.Path) }

// OpenSaveStore opens the configured save backend.
func (m *Manifest) OpenSaveStore() (save.Store, error) {
	return save.Open(m.Save.Backend, m.SavePath())
}

// MachineOptions converts the machine settings to vm options.
func (m *Manifest) MachineOptions() []vm.Option {
	opts := []vm.Option{
		vm.WithMaxCallDepth(m.Machine.MaxCallDepth),
		vm.WithMaxEvalStack(m.Machine.MaxEvalStack),
		vm.WithScreenSize(m.Machine.ScreenWidth, m.Machine.ScreenHeight),
		vm.WithTrace(m.Machine.Trace),
	}
	if m.Machine.UndoDepth != nil {
		opts = append(opts, vm.WithUndoDepth(*m.Machine.UndoDepth))
	}
	if m.Machine.RandomSeed != 0 {
		opts = append(opts, vm.WithRandomSeed(m.Machine.RandomSeed))
	}
	return opts
}
