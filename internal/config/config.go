// Package config defines the command-line configuration shared by every
// subcommand. Values come from flags, WIFIMGR_* environment variables and an
// optional TOML file, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/peterbourgon/ff/v3"
)

// EnvPrefix is prepended to flag names to form environment variables.
const EnvPrefix = "WIFIMGR"

// Config holds the root flags.
type Config struct {
	ConfigFile string
	DB         string
	KeyFile    string
	Simulator  string
	Backend    string
	Seed       int64
	LogLevel   string
	LogFormat  string
	Theme      string
	Format     string
	Version    bool
}

// DataDir returns the directory holding the database and key file.
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "wifimgr")
}

// Register defines the configuration flags on fs.
func (c *Config) Register(fs *flag.FlagSet) {
	dir := DataDir()
	fs.StringVar(&c.ConfigFile, "config", "", "path to a TOML config file (env: WIFIMGR_CONFIG)")
	fs.StringVar(&c.DB, "db", filepath.Join(dir, "wifimgr.db"), "path to the sqlite record store, or :memory:")
	fs.StringVar(&c.KeyFile, "key-file", filepath.Join(dir, "key"), "path to the credential encryption key")
	fs.StringVar(&c.Simulator, "simulator", "fallback", "simulated scan/connect: off, fallback or always")
	fs.StringVar(&c.Backend, "backend", "auto", "wifi backend: auto, mock, nmcli, networkmanager or iwd")
	fs.Int64Var(&c.Seed, "seed", 1, "simulator random seed")
	fs.StringVar(&c.LogLevel, "log-level", "", "log level override: debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", "text", "log output format: text or json")
	fs.StringVar(&c.Theme, "theme", "", "path to theme toml file")
	fs.StringVar(&c.Format, "format", "text", "output format: text, json or yaml")
	fs.BoolVar(&c.Version, "version", false, "display version")
}

// Options returns the ff options used to parse the root flag set.
func Options() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(TOMLParser),
		ff.WithAllowMissingConfigFile(true),
	}
}

// Parse parses args into fs using Options.
func Parse(fs *flag.FlagSet, args []string) error {
	return ff.Parse(fs, args, Options()...)
}

// TOMLParser is an ff.ConfigFileParser for TOML files. Top-level keys name
// flags; nested tables are flattened with dots and arrays set the flag once
// per element.
func TOMLParser(r io.Reader, set func(name, value string) error) error {
	var doc map[string]any
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return setAll("", doc, set)
}

func setAll(prefix string, table map[string]any, set func(name, value string) error) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := table[k].(type) {
		case map[string]any:
			if err := setAll(name, v, set); err != nil {
				return err
			}
		case []any:
			for _, item := range v {
				s, err := scalar(item)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				if err := set(name, s); err != nil {
					return err
				}
			}
		default:
			s, err := scalar(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := set(name, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func scalar(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}
