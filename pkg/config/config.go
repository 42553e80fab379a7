package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "./shelvr.yaml"
)

type Config struct {
	StorageDir          string `koanf:"storage_dir" validate:"required"`
	DatabaseFilePath    string `koanf:"database_file_path"`
	CacheDir            string `koanf:"cache_dir"`
	PreferencesFilePath string `koanf:"preferences_file_path"`

	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5" validate:"gte=0"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5" validate:"gte=0"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`

	ProgressDebounce     time.Duration `koanf:"progress_debounce" default:"1s"`
	ProgressMinDelta     float64       `koanf:"progress_min_delta" default:"0.01" validate:"gte=0,lte=1"`
	ProgressFlushOnClose bool          `koanf:"progress_flush_on_close"`

	EpubMinSizeBytes  int64 `koanf:"epub_min_size_bytes" default:"1000" validate:"gte=0"`
	EpubWarnSizeBytes int64 `koanf:"epub_warn_size_bytes" default:"2147483648" validate:"gte=0"`
}

// New loads the configuration. Values come from, in increasing precedence:
// struct defaults, the YAML file named by CONFIG_FILE (./shelvr.yaml when
// unset; a missing file is skipped), and environment variables named after
// the upper-cased keys (STORAGE_DIR, PROGRESS_DEBOUNCE, ...).
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", configFile)
		}
	}

	known := knownKeys()
	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(key)
		if !known[key] || value == "" {
			return "", nil
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()

	return cfg, nil
}

// NewForTest returns a configuration backed by an in-memory database and the
// default tuning values. Paths point at a throwaway storage root.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.StorageDir = filepath.Join(os.TempDir(), "shelvr-test")
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.applyDerivedDefaults()
	return cfg
}

// BooksDir is where imported EPUB files live, one directory per book.
func (c *Config) BooksDir() string {
	return filepath.Join(c.StorageDir, "books")
}

// CoversDir is where extracted cover images live.
func (c *Config) CoversDir() string {
	return filepath.Join(c.StorageDir, "covers")
}

func (c *Config) applyDerivedDefaults() {
	if c.DatabaseFilePath == "" {
		c.DatabaseFilePath = filepath.Join(c.StorageDir, "shelvr.sqlite")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.StorageDir, "cache")
	}
	if c.PreferencesFilePath == "" {
		c.PreferencesFilePath = filepath.Join(c.StorageDir, "preferences.json")
	}
}

func (c *Config) validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		key := toSnakeCase(fe.StructField())
		desc := strings.ToUpper(key) + " (" + key + ")"
		if fe.Tag() == "required" {
			missing = append(missing, desc)
		} else {
			invalid = append(invalid, desc)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return errors.Errorf("invalid config: %s", strings.Join(invalid, ", "))
}

// knownKeys returns the koanf keys of every Config field.
func knownKeys() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("koanf"); tag != "" {
			keys[tag] = true
		}
	}
	return keys
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
