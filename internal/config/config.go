package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

const envPrefix = "OPSBOARD"

type Channel struct {
	ID              string `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	CredentialsPath string `mapstructure:"credentials_path"`

	// Credentials is the resolved payload of CredentialsJSON or CredentialsPath.
	Credentials []byte `mapstructure:"-"`
}

type Lease struct {
	DB   string        `mapstructure:"db"`
	Wait time.Duration `mapstructure:"wait"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type Tracing struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

type OAuth struct {
	ClientSecretPath string `mapstructure:"client_secret_path"`
	RedirectURL      string `mapstructure:"redirect_url"`
}

type Config struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	// CredentialsSource is either the credential JSON itself or a path to it.
	CredentialsSource string    `mapstructure:"credentials"`
	AdminPass         string    `mapstructure:"admin_pass"`
	Addr              string    `mapstructure:"addr"`
	StaticDir         string    `mapstructure:"static_dir"`
	Timezone          string    `mapstructure:"timezone"`
	Currency          string    `mapstructure:"currency"`
	Lease             Lease     `mapstructure:"lease"`
	Log               Log       `mapstructure:"log"`
	OAuth             OAuth     `mapstructure:"oauth"`
	Tracing           Tracing   `mapstructure:"tracing"`
	Channels          []Channel `mapstructure:"channels"`

	Credentials []byte         `mapstructure:"-"`
	Location    *time.Location `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("spreadsheet_id", "")
	v.SetDefault("credentials", "")
	v.SetDefault("admin_pass", "")
	v.SetDefault("addr", ":8080")
	v.SetDefault("static_dir", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("currency", "KRW")
	v.SetDefault("lease.db", ".local/opsboard.db")
	v.SetDefault("lease.wait", 3*time.Second)
	v.SetDefault("lease.ttl", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("oauth.client_secret_path", ".local/client_secret.json")
	v.SetDefault("oauth.redirect_url", "http://localhost:8085/callback")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otlp")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "opsboard")
}

// Load reads configuration from the optional file at path, then from
// OPSBOARD_* environment variables. SPREADSHEET_ID, GOOGLE_SERVICE_ACCOUNT_JSON
// and ADMIN_PASS are honoured as fallbacks.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("spreadsheet_id", envPrefix+"_SPREADSHEET_ID", "SPREADSHEET_ID")
	_ = v.BindEnv("credentials", envPrefix+"_CREDENTIALS", "GOOGLE_SERVICE_ACCOUNT_JSON")
	_ = v.BindEnv("admin_pass", envPrefix+"_ADMIN_PASS", "ADMIN_PASS")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Configuration("unable to read config file %s: %v", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperr.Configuration("unable to decode configuration: %v", err)
	}
	cfg.Channels = mergeEnvChannels(cfg.Channels, os.Environ())

	if err := cfg.resolve(); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindConfiguration, Msg: "invalid configuration", Err: err}
	}
	return cfg, nil
}

// resolve loads referenced files and checks every value that was given. All
// problems are reported together.
func (c *Config) resolve() error {
	var errs error

	creds, err := readCredential(c.CredentialsSource)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("credentials: %w", err))
	}
	c.Credentials = creds

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("timezone: %w", err))
	}
	c.Location = loc

	if c.Lease.Wait <= 0 {
		errs = multierr.Append(errs, errors.New("lease.wait must be positive"))
	}
	if c.Lease.TTL <= 0 {
		errs = multierr.Append(errs, errors.New("lease.ttl must be positive"))
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			errs = multierr.Append(errs, fmt.Errorf("tracing.exporter must be otlp or zipkin, got %q", c.Tracing.Exporter))
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			errs = multierr.Append(errs, errors.New("tracing.sample_rate must be in (0, 1]"))
		}
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		if strings.TrimSpace(ch.Name) == "" {
			errs = multierr.Append(errs, fmt.Errorf("channels[%d]: name is required", i))
		}
		src := ch.CredentialsJSON
		if src == "" {
			src = ch.CredentialsPath
		}
		b, err := readCredential(src)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channels[%d] %s: %w", i, ch.Name, err))
		}
		ch.Credentials = b
	}
	return errs
}

// RequireSheets reports what is missing to talk to the spreadsheet.
func (c *Config) RequireSheets() error {
	var errs error
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		errs = multierr.Append(errs, errors.New("spreadsheet_id is required (OPSBOARD_SPREADSHEET_ID or SPREADSHEET_ID)"))
	}
	if len(c.Credentials) == 0 {
		errs = multierr.Append(errs, errors.New("credentials are required (OPSBOARD_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_JSON)"))
	}
	if errs != nil {
		return &apperr.Error{Kind: apperr.KindConfiguration, Msg: "missing configuration", Err: errs}
	}
	return nil
}

// readCredential accepts inline JSON or a file path.
func readCredential(src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	if strings.HasPrefix(src, "{") {
		return []byte(src), nil
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", src, err)
	}
	return b, nil
}

var channelEnv = regexp.MustCompile(`^YOUTUBE_CREDENTIALS_CHANNEL(\d+)$`)

// mergeEnvChannels applies YOUTUBE_CREDENTIALS_CHANNEL<n> variables. The n-th
// variable fills the credentials of the n-th configured channel; extra ones
// add channels named by YOUTUBE_CHANNEL<n>_NAME.
func mergeEnvChannels(channels []Channel, environ []string) []Channel {
	type entry struct {
		n     int
		value string
	}
	vars := make(map[string]string)
	var found []entry
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[k] = val
		if m := channelEnv.FindStringSubmatch(k); m != nil && strings.TrimSpace(val) != "" {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				found = append(found, entry{n: n, value: val})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	for _, e := range found {
		if e.n <= len(channels) {
			ch := &channels[e.n-1]
			if ch.CredentialsJSON == "" && ch.CredentialsPath == "" {
				ch.CredentialsJSON = e.value
			}
			continue
		}
		name := vars[fmt.Sprintf("YOUTUBE_CHANNEL%d_NAME", e.n)]
		if name == "" {
			name = fmt.Sprintf("channel%d", e.n)
		}
		channels = append(channels, Channel{
			ID:              vars[fmt.Sprintf("YOUTUBE_CHANNEL%d_ID", e.n)],
			Name:            name,
			CredentialsJSON: e.value,
		})
	}
	return channels
}
