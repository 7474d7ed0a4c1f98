package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/genricoloni/nowbar/internal/domain"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	defaultSpeed    = 0
	defaultWidth    = 40
	defaultPIDDir   = "/tmp/nowbar"
	defaultLogLevel = "info"
	defaultFormat   = "{title} - {artist}"
)

const (
	envConfig        = "NOWBAR_CONFIG"
	envSpeed         = "NOWBAR_SPEED"
	envWidth         = "NOWBAR_WIDTH"
	envBlocked       = "NOWBAR_BLOCKED"
	envScroll        = "NOWBAR_SCROLL"
	envFormat        = "NOWBAR_FORMAT"
	envIcon          = "NOWBAR_ICON"
	envPlayerIcon    = "NOWBAR_PLAYER_ICON"
	envPosition      = "NOWBAR_POSITION"
	envPositionMode  = "NOWBAR_POSITION_MODE"
	envFreezeOnPause = "NOWBAR_FREEZE_ON_PAUSE"
	envPIDDir        = "NOWBAR_PID_DIR"
	envLogLevel      = "NOWBAR_LOG_LEVEL"
)

// ErrHelp is returned when -h or --help was requested
var ErrHelp = flag.ErrHelp

// Config holds the immutable application configuration
type Config struct {
	Speed         int                 `yaml:"speed"`
	Width         int                 `yaml:"width"`
	Blocked       []string            `yaml:"blocked"`
	ScrollMode    domain.ScrollMode   `yaml:"scroll"`
	Format        string              `yaml:"format"`
	Icon          bool                `yaml:"icon"`
	PlayerIcon    bool                `yaml:"player-icon"`
	Position      bool                `yaml:"position"`
	PositionMode  domain.PositionMode `yaml:"position-mode"`
	FreezeOnPause bool                `yaml:"freeze-on-pause"`
	PIDDir        string              `yaml:"pid-dir"`
	LogLevel      string              `yaml:"log-level"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Speed:        defaultSpeed,
		Width:        defaultWidth,
		ScrollMode:   domain.ScrollWrapping,
		Format:       defaultFormat,
		Icon:         true,
		PositionMode: domain.PositionIncreasing,
		PIDDir:       defaultPIDDir,
		LogLevel:     defaultLogLevel,
	}
}

// Load parses configuration from CLI arguments and environment variables.
func Load() (Config, error) {
	return LoadArgs(os.Args[1:], os.Environ())
}

// LoadArgs allows tests to supply specific args/environment.
// Precedence is flag, then environment, then config file, then defaults.
func LoadArgs(args []string, environ []string) (Config, error) {
	env := parseEnv(environ)
	cfg := Default()

	path := configPath(args, env)
	if path != "" {
		if err := loadFile(expandPath(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	usage := new(strings.Builder)
	fs := flag.NewFlagSet("nowbar", flag.ContinueOnError)
	fs.SetOutput(usage)

	fs.String("config", path, "path to a YAML configuration file")
	speed := fs.Int("speed", envOrInt(env, envSpeed, cfg.Speed), "scroll speed (0: 1000ms per step, 100: 100ms per step)")
	width := fs.Int("width", envOrInt(env, envWidth, cfg.Width), "maximum width of the scrolling text")
	blocked := fs.String("blocked", envOrDefault(env, envBlocked, strings.Join(cfg.Blocked, ",")), "comma-separated player names to ignore")
	scroll := fs.String("scroll", envOrDefault(env, envScroll, string(cfg.ScrollMode)), "scroll mode: wrapping or reset")
	format := fs.String("format", envOrDefault(env, envFormat, cfg.Format), "metadata format (supports {title}, {artist}, {album})")
	icon := fs.Bool("icon", envOrBool(env, envIcon, cfg.Icon), "prefix the text with a play/pause icon")
	playerIcon := fs.Bool("player-icon", envOrBool(env, envPlayerIcon, cfg.PlayerIcon), "also show an icon for the player")
	position := fs.Bool("position", envOrBool(env, envPosition, cfg.Position), "show the track position")
	positionMode := fs.String("position-mode", envOrDefault(env, envPositionMode, string(cfg.PositionMode)), "position style: increasing or remaining")
	freeze := fs.Bool("freeze-on-pause", envOrBool(env, envFreezeOnPause, cfg.FreezeOnPause), "stop scrolling while paused")
	pidDir := fs.String("pid-dir", envOrDefault(env, envPIDDir, cfg.PIDDir), "directory for the pid file (empty disables it)")
	logLevel := fs.String("log-level", envOrDefault(env, envLogLevel, cfg.LogLevel), "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w\n%s", err, usage.String())
	}

	cfg = Config{
		Speed:         *speed,
		Width:         *width,
		Blocked:       normalizeBlocked(strings.Split(*blocked, ",")),
		ScrollMode:    domain.ScrollMode(strings.ToLower(*scroll)),
		Format:        *format,
		Icon:          *icon,
		PlayerIcon:    *playerIcon,
		Position:      *position,
		PositionMode:  domain.PositionMode(strings.ToLower(*positionMode)),
		FreezeOnPause: *freeze,
		PIDDir:        expandPath(*pidDir),
		LogLevel:      *logLevel,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every out-of-range or unknown setting
func (c Config) Validate() error {
	var err error
	if c.Speed < 0 || c.Speed > 100 {
		err = multierr.Append(err, fmt.Errorf("speed must be between 0 and 100 (got %d)", c.Speed))
	}
	if c.Width <= 0 {
		err = multierr.Append(err, fmt.Errorf("width must be > 0 (got %d)", c.Width))
	}
	switch c.ScrollMode {
	case domain.ScrollWrapping, domain.ScrollReset:
	default:
		err = multierr.Append(err, fmt.Errorf("scroll must be wrapping or reset (got %q)", c.ScrollMode))
	}
	switch c.PositionMode {
	case domain.PositionIncreasing, domain.PositionRemaining:
	default:
		err = multierr.Append(err, fmt.Errorf("position-mode must be increasing or remaining (got %q)", c.PositionMode))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log-level must be debug, info, warn or error (got %q)", c.LogLevel))
	}
	return err
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Blocked = normalizeBlocked(cfg.Blocked)
	return nil
}

// configPath finds --config before the full parse so the file can seed
// the flag defaults.
func configPath(args []string, env map[string]string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return env[envConfig]
}

func normalizeBlocked(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// expandPath resolves environment variables and a leading ~
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}

func parseEnv(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}

func envOrDefault(env map[string]string, key, def string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return def
}

func envOrInt(env map[string]string, key string, def int) int {
	if v, ok := env[key]; ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrBool(env map[string]string, key string, def bool) bool {
	if v, ok := env[key]; ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// IsHelp reports whether err asks for usage output
func IsHelp(err error) bool {
	return errors.Is(err, ErrHelp)
}
