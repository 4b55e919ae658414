// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/subosito/gotenv"

	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/util"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete grok configuration.
type Config struct {
	// API connection settings
	API APIConfig `toml:"api" json:"api"`

	// Chat defaults
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Storage locations
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`
}

// APIConfig contains xAI API connection settings.
type APIConfig struct {
	// Key is the xAI API key
	Key string `toml:"key" json:"key"`
	// BaseURL is the API base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the per-call deadline in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerMinute paces outgoing requests (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// ChatConfig contains default chat request options.
type ChatConfig struct {
	// Model is the default model id
	Model string `toml:"model" json:"model"`
	// Temperature is the sampling temperature (unset = server default)
	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	// MaxTokens caps the reply length (0 = server default)
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// Stream prints replies as they arrive
	Stream bool `toml:"stream" json:"stream"`
	// ContextBudget is the token budget for attached files and context
	ContextBudget int `toml:"context_budget" json:"context_budget"`
}

// StorageConfig contains on-disk locations.
type StorageConfig struct {
	// DataDir holds the transcript database and prompt history
	// (empty = the config directory)
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	// File receives debug logs (empty = stderr, warnings only)
	File string `toml:"file" json:"file"`
	// Verbose enables debug-level logging
	Verbose bool `toml:"verbose" json:"verbose"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default values.
const (
	DefaultModel         = "grok-beta"
	DefaultTimeoutSecs   = 30
	DefaultContextBudget = 30000
	MaxTimeoutSecs       = 600
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     xai.DefaultBaseURL,
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Chat: ChatConfig{
			Model:         DefaultModel,
			ContextBudget: DefaultContextBudget,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the grok configuration directory path.
// GROK_CONFIG_DIR overrides the default ~/.grok-cli.
func ConfigDir() (string, error) {
	if dir := os.Getenv("GROK_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".grok-cli"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// ensureSecurePermissions tightens config files to 0600; they hold the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// A .env file in the working directory and environment overrides are
// applied last.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads only the saved config file over the defaults, without
// .env or environment overrides. Use it when the result will be saved back.
func LoadFile() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, err
	}

	switch {
	case fileExists(tomlPath):
		if err := LoadTOML(cfg, tomlPath); err != nil {
			return nil, err
		}
	case fileExists(jsonPath):
		if err := LoadJSON(cfg, jsonPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadTOML loads configuration from a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
	}
	fillDefaults(cfg)
	return nil
}

// legacyJSON is the flat config.json layout of earlier grok releases.
type legacyJSON struct {
	APIKey       string   `json:"apiKey"`
	BaseURL      string   `json:"baseUrl"`
	DefaultModel string   `json:"defaultModel"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"maxTokens"`
	Timeout      int      `json:"timeout"`
}

// knownJSONKeys are the top-level keys LoadJSON understands.
var knownJSONKeys = map[string]bool{
	"api": true, "chat": true, "storage": true, "log": true,
	"apiKey": true, "baseUrl": true, "defaultModel": true,
	"temperature": true, "maxTokens": true, "timeout": true,
}

// LoadJSON loads configuration from a JSON file over cfg. Both the sectioned
// layout and the flat legacy layout are accepted; flat keys that are set
// win over their sectioned counterparts.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}

	var legacy legacyJSON
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	legacy.apply(cfg)

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err == nil {
		var unknown []string
		for k := range top {
			if !knownJSONKeys[k] {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, unknown)
		}
	}

	fillDefaults(cfg)
	return nil
}

func (l legacyJSON) apply(cfg *Config) {
	if l.APIKey != "" {
		cfg.API.Key = l.APIKey
	}
	if l.BaseURL != "" {
		cfg.API.BaseURL = l.BaseURL
	}
	if l.Timeout > 0 {
		cfg.API.TimeoutSecs = l.Timeout
	}
	if l.DefaultModel != "" {
		cfg.Chat.Model = l.DefaultModel
	}
	if l.Temperature != nil {
		t := *l.Temperature
		cfg.Chat.Temperature = &t
	}
	if l.MaxTokens > 0 {
		cfg.Chat.MaxTokens = l.MaxTokens
	}
}

// fillDefaults restores defaults for fields a file explicitly emptied.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = defaults.Chat.Model
	}
	if cfg.Chat.ContextBudget == 0 {
		cfg.Chat.ContextBudget = defaults.Chat.ContextBudget
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# grok configuration file\n")
	buf.WriteString("# Generated by grok - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Reset removes the saved config files.
func Reset() error {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
// A missing API key is not a validation error; commands that need one
// check IsConfigured.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "api.base_url",
				Message: fmt.Sprintf("must be an http(s) URL, got %q", c.API.BaseURL),
			})
		}
	}

	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > MaxTimeoutSecs {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxTimeoutSecs, c.API.TimeoutSecs),
		})
	}

	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.requests_per_minute",
			Message: "must not be negative",
		})
	}

	if t := c.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", *t),
		})
	}

	if c.Chat.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: "must not be negative",
		})
	}

	if c.Chat.ContextBudget < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.context_budget",
			Message: "must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GROK_API_KEY: overrides api.key
//   - GROK_BASE_URL: overrides api.base_url
//   - GROK_MODEL: overrides chat.model
//   - GROK_TIMEOUT: overrides api.timeout_secs (seconds, or a duration like "45s")
//   - GROK_LOG_FILE: overrides log.file
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GROK_API_KEY"); key != "" {
		c.API.Key = key
	}
	if u := os.Getenv("GROK_BASE_URL"); u != "" {
		c.API.BaseURL = u
	}
	if m := os.Getenv("GROK_MODEL"); m != "" {
		c.Chat.Model = m
	}
	if t := os.Getenv("GROK_TIMEOUT"); t != "" {
		if secs, err := strconv.Atoi(t); err == nil {
			c.API.TimeoutSecs = secs
		} else if d, err := time.ParseDuration(t); err == nil {
			c.API.TimeoutSecs = int(d.Round(time.Second) / time.Second)
		}
	}
	if f := os.Getenv("GROK_LOG_FILE"); f != "" {
		c.Log.File = f
	}
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// IsConfigured returns true if an API key is set.
func (c *Config) IsConfigured() bool {
	return strings.TrimSpace(c.API.Key) != ""
}

// Timeout returns the per-call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// Transport returns the transport configuration.
func (c *Config) Transport() xai.Config {
	return xai.Config{
		APIKey:  c.API.Key,
		BaseURL: c.API.BaseURL,
		Timeout: c.Timeout(),
	}
}

// ChatOptions returns the default per-call options.
func (c *Config) ChatOptions() model.ChatOptions {
	opts := model.ChatOptions{Model: c.Chat.Model, Stream: c.Chat.Stream}
	if c.Chat.Temperature != nil {
		opts = opts.WithTemperature(*c.Chat.Temperature)
	}
	if c.Chat.MaxTokens > 0 {
		opts = opts.WithMaxTokens(c.Chat.MaxTokens)
	}
	return opts
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// keyAliases maps the flat key names of older config files to dotted keys.
var keyAliases = map[string]string{
	"api_key":       "api.key",
	"apikey":        "api.key",
	"base_url":      "api.base_url",
	"baseurl":       "api.base_url",
	"default_model": "chat.model",
	"model":         "chat.model",
	"temperature":   "chat.temperature",
	"max_tokens":    "chat.max_tokens",
	"timeout":       "api.timeout_secs",
}

// ResolveKey returns the canonical dotted form of key.
func ResolveKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}

// Get retrieves a configuration value using dot notation (e.g., "chat.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(ResolveKey(key))
	if err != nil {
		return nil, err
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		return field.Elem().Interface(), nil
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "chat.model").
// String values are converted to the field's type. An empty string clears
// optional fields.
func (c *Config) Set(key string, value interface{}) error {
	key = ResolveKey(key)
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks a dotted key to its struct field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if field.Kind() == reflect.Ptr {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if strVal, ok := value.(string); ok {
		strVal = strings.TrimSpace(strVal)
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns all configuration keys in dot notation, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := tomlName(section)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+tomlName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

func tomlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Chat.Temperature != nil {
		t := *c.Chat.Temperature
		clone.Chat.Temperature = &t
	}
	return &clone
}

// RedactedKey returns a display form of the API key that never shows it.
func (c *Config) RedactedKey() string {
	if !c.IsConfigured() {
		return "Not set"
	}
	return fmt.Sprintf("[REDACTED, fingerprint=%s]", xai.Fingerprint(c.API.Key))
}

// String returns a JSON representation with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Key != "" {
		safe.API.Key = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
