// Package config loads the wallet synchronizer's daemon configuration from
// a TOML file, grounded in the teacher's cmd/utils/nodecmd/dumpconfigcmd.go
// loadConfig/tomlSettings idiom.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// tomlSettings mirrors the teacher's: TOML keys use the same names as the
// Go struct fields, and an unrecognized field is a load error rather than
// a silently ignored typo.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// ServerConfig is the remote index server the Synchronizer connects to.
type ServerConfig struct {
	URL         string
	TickInterval time.Duration
}

// StorageConfig selects and configures the WalletStore backend.
type StorageConfig struct {
	Backend string // "leveldb" (also when empty) or "badger"
	Path    string
	CacheMB int
	Handles int
}

// NotifierConfig configures the optional webhook Notifier.
type NotifierConfig struct {
	Enabled        bool
	WatchStore     string // "redis" or "sql"
	RedisAddr      string
	SQLDataSource  string
	MappingFile    string
}

// MetricsConfig configures the optional InfluxDB reporter.
type MetricsConfig struct {
	InfluxDBEnabled bool
	InfluxDBURL     string
	InfluxDBName    string
	InfluxDBUser    string
	InfluxDBPass    string
	ReportInterval  time.Duration
}

// EventBusConfig selects between the in-process bus and the Kafka-backed
// one.
type EventBusConfig struct {
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Config is the walletsyncd/notifierd daemon's full TOML configuration.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Notifier NotifierConfig
	Metrics  MetricsConfig
	EventBus EventBusConfig
}

// Default returns a Config with the daemon's zero-configuration defaults:
// a local LevelDB store under ./walletsyncd-data, no notifier, no metrics
// reporter, local event bus.
func Default() Config {
	return Config{
		Server: ServerConfig{TickInterval: 100 * time.Millisecond},
		Storage: StorageConfig{
			Backend: "leveldb",
			Path:    "./walletsyncd-data",
			CacheMB: 16,
			Handles: 16,
		},
	}
}

// Load reads and decodes a TOML file into cfg, starting from Default().
func Load(path string, cfg *Config) error {
	*cfg = Default()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open config file %s", path)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		if _, ok := err.(*toml.LineError); ok {
			return errors.Wrap(err, path)
		}
		return errors.Wrapf(err, "decode config file %s", path)
	}
	return nil
}
