// Package config reads the INI configuration document, resolves the
// default-generation and log-path rules described in the bootstrap
// contract, and exposes the parsed settings and forwarding rules to the
// rest of the program.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Defaults for the configuration document and the files it may be asked to
// generate or fall back to.
const (
	DefaultConfigFilename  = "pylicator.conf"
	DefaultLogFilename     = "pylicator.log"
	DefaultDataLogFilename = "pylicator_data.log"
	DefaultListenPort      = 162
)

const defaultConfigTemplate = `[settings]
listen_port = 162
log_traps = false
log_bytes = false
spoof_src = false
log_path =
data_log_path =

[forwarding_rules]
; <origin_cidr> = <dest1> <dest2> ...
`

// Settings is the [settings] section of the configuration document.
type Settings struct {
	ListenPort  int    `mapstructure:"listen_port"`
	LogTraps    bool   `mapstructure:"log_traps"`
	LogBytes    bool   `mapstructure:"log_bytes"`
	SpoofSrc    bool   `mapstructure:"spoof_src"`
	LogPath     string `mapstructure:"log_path"`
	DataLogPath string `mapstructure:"data_log_path"`
}

// Document is the fully parsed configuration: typed settings plus the
// ordered (origin_cidr, destination_list) pairs from [forwarding_rules].
// Order is preserved because duplicate-origin detection and rule.NewTable
// both need it; a plain map would silently collapse duplicate keys.
type Document struct {
	Settings Settings
	Rules    [][2]string
}

// ResolveConfPath applies the CLI path rule: empty resolves to
// DefaultConfigFilename in the working directory; an existing directory has
// the default filename appended; anything else (a file path, existing or
// not) is used as given.
func ResolveConfPath(confPath string) (string, error) {
	if confPath == "" {
		confPath = DefaultConfigFilename
	}
	info, err := os.Stat(confPath)
	if err == nil && info.IsDir() {
		return filepath.Join(confPath, DefaultConfigFilename), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("config: stat %q: %w", confPath, err)
	}
	return confPath, nil
}

// Load resolves confPath, generates a default configuration document if
// none exists there, and otherwise parses it. generated is true when a
// default was just written; the caller should exit 0 in that case without
// starting the dispatcher.
func Load(confPath string) (doc *Document, generated bool, err error) {
	resolved, err := ResolveConfPath(confPath)
	if err != nil {
		return nil, false, err
	}

	if _, statErr := os.Stat(resolved); os.IsNotExist(statErr) {
		if err := os.WriteFile(resolved, []byte(defaultConfigTemplate), 0o644); err != nil {
			return nil, false, fmt.Errorf("config: write default config %q: %w", resolved, err)
		}
		return nil, true, nil
	}

	settings, err := parseSettings(resolved)
	if err != nil {
		return nil, false, err
	}

	rules, err := parseForwardingRules(resolved)
	if err != nil {
		return nil, false, err
	}

	return &Document{Settings: settings, Rules: rules}, false, nil
}

func parseSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("settings.listen_port", DefaultListenPort)
	v.SetDefault("settings.log_traps", false)
	v.SetDefault("settings.log_bytes", false)
	v.SetDefault("settings.spoof_src", false)
	v.SetDefault("settings.log_path", "")
	v.SetDefault("settings.data_log_path", "")

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	var settings Settings
	if err := v.UnmarshalKey("settings", &settings); err != nil {
		return Settings{}, fmt.Errorf("config: parse [settings] in %q: %w", path, err)
	}
	if settings.ListenPort < 1 || settings.ListenPort > 65535 {
		return Settings{}, fmt.Errorf("config: listen_port %d out of range [1,65535]", settings.ListenPort)
	}
	return settings, nil
}

// parseForwardingRules reads [forwarding_rules] directly through ini.v1
// (viper's own INI backend) with shadow keys enabled, so a CIDR repeated as
// two keys in the same section is visible as a duplicate instead of being
// silently overwritten.
func parseForwardingRules(path string) ([][2]string, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	section, err := file.GetSection("forwarding_rules")
	if err != nil {
		// Section absent entirely is not an error: zero rules.
		return nil, nil
	}

	var rules [][2]string
	for _, key := range section.Keys() {
		if shadows := key.ValueWithShadows(); len(shadows) > 1 {
			return nil, fmt.Errorf("config: duplicate forwarding rule for origin %q", key.Name())
		}
		rules = append(rules, [2]string{key.Name(), key.Value()})
	}
	return rules, nil
}

// ResolveLogPath applies the log-path resolution rule shared by log_path
// and data_log_path: empty resolves to defaultFilename in the working
// directory; an existing file or a path whose parent exists is used as
// given (a directory has defaultFilename appended); anything else falls
// back to defaultFilename and reports a warning.
func ResolveLogPath(configured, defaultFilename string) (resolved string, warning string) {
	if configured == "" {
		return defaultFilename, ""
	}

	info, err := os.Stat(configured)
	if err == nil {
		if info.IsDir() {
			return filepath.Join(configured, defaultFilename), ""
		}
		return configured, ""
	}
	if os.IsNotExist(err) {
		if parentInfo, perr := os.Stat(filepath.Dir(configured)); perr == nil && parentInfo.IsDir() {
			return configured, ""
		}
	}
	return defaultFilename, fmt.Sprintf("log path %q is unusable, falling back to %q", configured, defaultFilename)
}
