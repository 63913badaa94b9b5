// Package config provides configuration management for rescale-upload.
//
// Engine settings live in a TOML file (~/.config/rescale-upload/config.toml),
// secrets live in an INI credentials file with one section per profile.
// Precedence, lowest to highest: defaults, config file, environment, flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rescale/rescale-upload/internal/constants"
)

// Backend types
const (
	BackendREST  = "rest"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendBlob  = "blob"
)

// Validation errors
var (
	ErrInvalidConcurrency       = fmt.Errorf("concurrency must be between 1 and %d", constants.MaxConcurrency)
	ErrInvalidFolderConcurrency = fmt.Errorf("folder_concurrency must be between 1 and %d", constants.MaxFolderConcurrency)
	ErrInvalidStallTimeout      = errors.New("stall_timeout must be positive")
	ErrUnknownBackend           = errors.New("unknown backend type")
	ErrMissingBucket            = errors.New("s3 backend requires a bucket")
	ErrMissingContainerURL      = errors.New("azure backend requires container_url")
	ErrMissingBlobURL           = errors.New("blob backend requires url")
)

// Duration is a time.Duration that reads and writes as "10s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all engine settings.
type Config struct {
	Upload  UploadConfig  `toml:"upload"`
	Backend BackendConfig `toml:"backend"`
	Proxy   ProxyConfig   `toml:"proxy"`
}

// UploadConfig tunes the upload engine.
type UploadConfig struct {
	// Concurrency is the number of upload workers. Default: 10
	Concurrency int `toml:"concurrency"`

	// FolderConcurrency is the number of same-depth directories created at once. Default: 1
	FolderConcurrency int `toml:"folder_concurrency"`

	// StallTimeout aborts a transfer that reports no progress for this long.
	StallTimeout Duration `toml:"stall_timeout"`

	// HardTimeoutFloor is the minimum wall-clock bound for one transfer.
	HardTimeoutFloor Duration `toml:"hard_timeout_floor"`

	// ProbeTimeout bounds the readability probe during collection.
	ProbeTimeout Duration `toml:"probe_timeout"`

	// ZeroByteTimeout bounds reading a zero-length entry into memory.
	ZeroByteTimeout Duration `toml:"zero_byte_timeout"`

	IncludeHidden        bool `toml:"include_hidden"`
	DesktopNotifications bool `toml:"desktop_notifications"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Type string `toml:"type"`

	// FolderID is the default remote target; empty means the home folder.
	FolderID string `toml:"folder_id"`

	S3    S3Config    `toml:"s3"`
	Azure AzureConfig `toml:"azure"`
	Blob  BlobConfig  `toml:"blob"`
}

// S3Config configures the S3 backend. Keys come from credentials or the AWS chain.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint"`
}

// AzureConfig configures the Azure backend. The SAS token comes from credentials.
type AzureConfig struct {
	ContainerURL string `toml:"container_url"`
	Prefix       string `toml:"prefix"`
}

// BlobConfig configures the portable blob backend (mem://, file:///path, s3://bucket).
type BlobConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// ProxyConfig configures outbound proxying for every backend.
type ProxyConfig struct {
	Mode     string `toml:"mode"` // no-proxy, system, basic, ntlm
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	NoProxy  string `toml:"no_proxy"`
	Password string `toml:"-"` // never persisted
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Upload: UploadConfig{
			Concurrency:       constants.DefaultConcurrency,
			FolderConcurrency: constants.DefaultFolderConcurrency,
			StallTimeout:      Duration{constants.DefaultStallTimeout},
			HardTimeoutFloor:  Duration{constants.HardTimeoutFloor},
			ProbeTimeout:      Duration{constants.ProbeTimeout},
			ZeroByteTimeout:   Duration{constants.ZeroByteMaterializeTimeout},
		},
		Backend: BackendConfig{
			Type: BackendREST,
		},
		Proxy: ProxyConfig{
			Mode: "system",
		},
	}
}

// Load reads a TOML config file on top of the defaults.
// A missing file is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	md, err := toml.NewDecoder(f).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}

	return cfg, nil
}

// Save writes the config as TOML, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from RESCALE_UPLOAD_* environment variables.
// lookup is os.LookupEnv outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(constants.EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCONCURRENCY: %w", constants.EnvPrefix, err)
		}
		c.Upload.Concurrency = n
	}
	if v, ok := get("STALL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTALL_TIMEOUT: %w", constants.EnvPrefix, err)
		}
		c.Upload.StallTimeout = Duration{d}
	}
	if v, ok := get("BACKEND"); ok {
		c.Backend.Type = v
	}
	if v, ok := get("FOLDER_ID"); ok {
		c.Backend.FolderID = v
	}
	if v, ok := get("PROXY_MODE"); ok {
		c.Proxy.Mode = v
	}
	if v, ok := get("PROXY_PASSWORD"); ok {
		c.Proxy.Password = v
	}
	return nil
}

// FlagOverrides carries CLI flag values; zero values mean "not set".
type FlagOverrides struct {
	Concurrency          int
	FolderConcurrency    int
	StallTimeout         time.Duration
	Backend              string
	FolderID             string
	IncludeHidden        bool
	DesktopNotifications bool
	ProxyMode            string
}

// MergeWithFlags applies non-zero flag values over the config.
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.Concurrency > 0 {
		c.Upload.Concurrency = f.Concurrency
	}
	if f.FolderConcurrency > 0 {
		c.Upload.FolderConcurrency = f.FolderConcurrency
	}
	if f.StallTimeout > 0 {
		c.Upload.StallTimeout = Duration{f.StallTimeout}
	}
	if f.Backend != "" {
		c.Backend.Type = f.Backend
	}
	if f.FolderID != "" {
		c.Backend.FolderID = f.FolderID
	}
	if f.IncludeHidden {
		c.Upload.IncludeHidden = true
	}
	if f.DesktopNotifications {
		c.Upload.DesktopNotifications = true
	}
	if f.ProxyMode != "" {
		c.Proxy.Mode = f.ProxyMode
	}
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Upload.Concurrency < 1 || c.Upload.Concurrency > constants.MaxConcurrency {
		return ErrInvalidConcurrency
	}
	if c.Upload.FolderConcurrency < 1 || c.Upload.FolderConcurrency > constants.MaxFolderConcurrency {
		return ErrInvalidFolderConcurrency
	}
	if c.Upload.StallTimeout.Duration <= 0 {
		return ErrInvalidStallTimeout
	}

	switch c.Backend.Type {
	case BackendREST:
	case BackendS3:
		if c.Backend.S3.Bucket == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if c.Backend.Azure.ContainerURL == "" {
			return ErrMissingContainerURL
		}
	case BackendBlob:
		if c.Backend.Blob.URL == "" {
			return ErrMissingBlobURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend.Type)
	}
	return nil
}

// HardTimeout returns max(2 * stall timeout, floor).
func (c *Config) HardTimeout() time.Duration {
	return HardTimeoutFor(c.Upload.StallTimeout.Duration, c.Upload.HardTimeoutFloor.Duration)
}

// HardTimeoutFor computes the hard transfer bound for a stall window.
func HardTimeoutFor(stall, floor time.Duration) time.Duration {
	hard := stall * constants.HardTimeoutStallMultiplier
	if hard < floor {
		return floor
	}
	return hard
}
