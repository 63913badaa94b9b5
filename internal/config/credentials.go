package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/rescale/rescale-upload/internal/constants"
)

// Credentials holds the secrets for one profile.
//
// INI format, one section per profile:
//
//	[default]
//	platform_url = https://platform.rescale.com
//	api_key = <token>
//	aws_access_key_id = AKIA...
//	aws_secret_access_key = ...
//	azure_sas_token = sv=...
type Credentials struct {
	Profile            string `ini:"-"`
	PlatformURL        string `ini:"platform_url"`
	APIKey             string `ini:"api_key"`
	AWSAccessKeyID     string `ini:"aws_access_key_id"`
	AWSSecretAccessKey string `ini:"aws_secret_access_key"`
	AWSSessionToken    string `ini:"aws_session_token"`
	AzureSASToken      string `ini:"azure_sas_token"`
}

// Credential errors
var (
	ErrMissingPlatformURL = errors.New("platform_url is required")
	ErrMissingAPIKey      = errors.New("api_key is required")
)

// NewCredentials creates Credentials with default values.
func NewCredentials(profile string) *Credentials {
	if profile == "" {
		profile = constants.DefaultProfile
	}
	return &Credentials{
		Profile:     profile,
		PlatformURL: constants.DefaultAPIBaseURL,
	}
}

// LoadCredentials loads one profile from an INI file.
// A missing file or section yields defaults and no error.
func LoadCredentials(path, profile string) (*Credentials, error) {
	creds := NewCredentials(profile)

	if path == "" {
		var err error
		path, err = DefaultCredentialsPath()
		if err != nil {
			return creds, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return creds, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if !iniFile.HasSection(creds.Profile) {
		return creds, nil
	}

	section := iniFile.Section(creds.Profile)
	creds.PlatformURL = section.Key("platform_url").MustString(creds.PlatformURL)
	creds.APIKey = section.Key("api_key").String()
	creds.AWSAccessKeyID = section.Key("aws_access_key_id").String()
	creds.AWSSecretAccessKey = section.Key("aws_secret_access_key").String()
	creds.AWSSessionToken = section.Key("aws_session_token").String()
	creds.AzureSASToken = section.Key("azure_sas_token").String()

	return creds, nil
}

// SaveCredentials writes the profile into the INI file, keeping other profiles.
// The file is written with 0600 permissions.
func SaveCredentials(creds *Credentials, path string) error {
	if path == "" {
		var err error
		path, err = DefaultCredentialsPath()
		if err != nil {
			return fmt.Errorf("failed to determine credentials path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	if _, err := os.Stat(path); err == nil {
		loaded, err := ini.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		iniFile = loaded
	}

	iniFile.DeleteSection(creds.Profile)
	section, err := iniFile.NewSection(creds.Profile)
	if err != nil {
		return fmt.Errorf("failed to create %s section: %w", creds.Profile, err)
	}
	if err := section.ReflectFrom(creds); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set credentials permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// ApplyEnv lets RESCALE_API_KEY / RESCALE_API_URL override the file values.
func (c *Credentials) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("RESCALE_API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("RESCALE_API_URL"); ok && strings.TrimSpace(v) != "" {
		c.PlatformURL = strings.TrimSpace(v)
	}
}

// ValidateForREST checks the settings the drive API backend needs.
func (c *Credentials) ValidateForREST() error {
	if strings.TrimSpace(c.PlatformURL) == "" {
		return ErrMissingPlatformURL
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// HasStaticAWSKeys reports whether an explicit AWS key pair is configured.
func (c *Credentials) HasStaticAWSKeys() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}
