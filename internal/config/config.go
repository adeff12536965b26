// Package config loads and validates the run configuration.
//
// Settings come from an INI file (the CLIENT_SETTINGS / SCRIPT_SETTINGS layout)
// or a YAML file with the same sections. Every key can be overridden from the
// environment using the ITEMTYPE_ prefix, e.g. ITEMTYPE_CLIENT_SETTINGS_USER_SECRET.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
)

// Section names.
const (
	ClientSection = "client_settings"
	ScriptSection = "script_settings"
)

// Keys, relative to their section.
const (
	KeyURL        = "jama_connect_url"
	KeyOAuth      = "oauth"
	KeyUserID     = "user_id"
	KeyUserSecret = "user_secret"
	KeyTimeout    = "timeout"

	KeyCSVFilePath          = "csv_file_path"
	KeyDestinationField     = "destination_item_of_type_field"
	KeySourceHeader         = "csv_source_header"
	KeyDestinationHeader    = "csv_destination_header"
	KeyUsingAPIID           = "using_api_id"
	KeySourceFieldName      = "source_field_name"
	KeyDestinationFieldName = "destination_field_name"
)

// Client holds the connection settings for the item-tracking service.
type Client struct {
	URL        string        `json:"url" yaml:"url"`
	OAuth      bool          `json:"oauth" yaml:"oauth"`
	UserID     string        `json:"user_id" yaml:"user_id"`
	UserSecret string        `json:"-" yaml:"-"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Settings is the script configuration for one reconciliation run.
type Settings struct {
	CSVFilePath            string `json:"csv_file_path" yaml:"csv_file_path"`
	DestinationField       string `json:"destination_field" yaml:"destination_field"`
	SourceHeader           string `json:"source_header" yaml:"source_header"`
	DestinationHeader      string `json:"destination_header" yaml:"destination_header"`
	UsingDirectIdentifiers bool   `json:"using_api_id" yaml:"using_api_id"`
	SourceFieldName        string `json:"source_field_name,omitempty" yaml:"source_field_name,omitempty"`
	DestinationFieldName   string `json:"destination_field_name,omitempty" yaml:"destination_field_name,omitempty"`
}

// Config is the fully loaded configuration.
type Config struct {
	Path     string   `json:"path" yaml:"path"`
	Client   Client   `json:"client" yaml:"client"`
	Settings Settings `json:"settings" yaml:"settings"`
}

// Validate checks that all required script settings are present. The lookup
// field names are only required outside direct-identifier mode.
func (s Settings) Validate() error {
	required := []struct {
		key, value string
	}{
		{KeyCSVFilePath, s.CSVFilePath},
		{KeyDestinationField, s.DestinationField},
		{KeySourceHeader, s.SourceHeader},
		{KeyDestinationHeader, s.DestinationHeader},
	}
	if !s.UsingDirectIdentifiers {
		required = append(required,
			struct{ key, value string }{KeySourceFieldName, s.SourceFieldName},
			struct{ key, value string }{KeyDestinationFieldName, s.DestinationFieldName},
		)
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, ScriptSection+"."+r.key)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigError("settings", "missing required keys: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Validate checks the client settings.
func (c Client) Validate() error {
	if c.URL == "" {
		return errors.NewConfigError("client", "missing required key: "+ClientSection+"."+KeyURL, nil)
	}
	if c.UserID == "" || c.UserSecret == "" {
		return errors.NewConfigError("client", "both "+KeyUserID+" and "+KeyUserSecret+" are required", nil)
	}
	if c.Timeout < 0 {
		return errors.NewConfigError("client", "timeout must not be negative", nil)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return err
	}
	return c.Settings.Validate()
}

// NormalizeURL trims whitespace and trailing slashes and adds an https scheme
// when none is given.
func NormalizeURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. Relative CSV paths are resolved against the
// directory of the configuration file when they do not exist relative to the
// working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = constants.DefaultConfigFile
	}
	loadDotEnv()

	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	cfg.Settings.CSVFilePath = resolveRelative(path, cfg.Settings.CSVFilePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env and .env.local when present. Existing environment
// variables win.
func loadDotEnv() {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// newViper builds a private viper instance for path.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault(ClientSection+"."+KeyTimeout, constants.DefaultHTTPTimeout.String())

	// AutomaticEnv only consults keys viper knows about.
	for _, key := range allKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.NewConfigError("env", "binding "+key, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.WrapIO("open", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapParse("yaml", path, err)
		}
	default:
		values, err := readINI(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, errors.WrapParse("ini", path, err)
		}
	}
	return v, nil
}

// readINI flattens an INI file into nested maps keyed by lower-cased section
// and key names.
func readINI(path string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, errors.WrapParse("ini", path, err)
	}

	out := make(map[string]any)
	for _, section := range file.Sections() {
		if len(section.Keys()) == 0 {
			continue
		}
		values := make(map[string]any, len(section.Keys()))
		for _, key := range section.Keys() {
			values[strings.ToLower(key.Name())] = key.Value()
		}
		out[strings.ToLower(section.Name())] = values
	}
	return out, nil
}

func decode(v *viper.Viper) (*Config, error) {
	oauth, err := boolKey(v, ClientSection+"."+KeyOAuth, false)
	if err != nil {
		return nil, err
	}
	direct, err := boolKey(v, ScriptSection+"."+KeyUsingAPIID, true)
	if err != nil {
		return nil, err
	}
	timeout, err := durationKey(v, ClientSection+"."+KeyTimeout)
	if err != nil {
		return nil, err
	}

	str := func(section, key string) string {
		return strings.TrimSpace(v.GetString(section + "." + key))
	}

	return &Config{
		Client: Client{
			URL:        NormalizeURL(str(ClientSection, KeyURL)),
			OAuth:      oauth,
			UserID:     str(ClientSection, KeyUserID),
			UserSecret: str(ClientSection, KeyUserSecret),
			Timeout:    timeout,
		},
		Settings: Settings{
			CSVFilePath:            str(ScriptSection, KeyCSVFilePath),
			DestinationField:       str(ScriptSection, KeyDestinationField),
			SourceHeader:           str(ScriptSection, KeySourceHeader),
			DestinationHeader:      str(ScriptSection, KeyDestinationHeader),
			UsingDirectIdentifiers: direct,
			SourceFieldName:        str(ScriptSection, KeySourceFieldName),
			DestinationFieldName:   str(ScriptSection, KeyDestinationFieldName),
		},
	}, nil
}

// boolKey parses a boolean strictly. A missing key is an error when required.
func boolKey(v *viper.Viper, key string, required bool) (bool, error) {
	raw := v.Get(key)
	if raw == nil || strings.TrimSpace(cast.ToString(raw)) == "" {
		if required {
			return false, errors.NewConfigError("settings", "missing required key: "+key, nil)
		}
		return false, nil
	}
	if s, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "on":
			return true, nil
		case "no", "off":
			return false, nil
		}
		raw = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, errors.NewConfigError("settings", "invalid boolean for "+key, err)
	}
	return b, nil
}

// durationKey parses a duration. Bare numbers are seconds.
func durationKey(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if n, err := cast.ToIntE(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		raw = s
	}
	if n, ok := raw.(int); ok {
		return time.Duration(n) * time.Second, nil
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, errors.NewConfigError("client", "invalid "+KeyTimeout+" value", err)
	}
	return d, nil
}

func resolveRelative(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	candidate := filepath.Join(filepath.Dir(configPath), p)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return p
}

func allKeys() []string {
	return []string{
		ClientSection + "." + KeyURL,
		ClientSection + "." + KeyOAuth,
		ClientSection + "." + KeyUserID,
		ClientSection + "." + KeyUserSecret,
		ClientSection + "." + KeyTimeout,
		ScriptSection + "." + KeyCSVFilePath,
		ScriptSection + "." + KeyDestinationField,
		ScriptSection + "." + KeySourceHeader,
		ScriptSection + "." + KeyDestinationHeader,
		ScriptSection + "." + KeyUsingAPIID,
		ScriptSection + "." + KeySourceFieldName,
		ScriptSection + "." + KeyDestinationFieldName,
	}
}
