package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/tendant/site-thumbnailer/internal/process"
)

const envPrefix = "THUMBNAIL"

type config struct {
	Enable       bool           `mapstructure:"enable"`
	OutputPath   string         `mapstructure:"output_path" default:"output" validate:"required"`
	SaveAs       string         `mapstructure:"save_as" default:"{parent}/thumbnails/{stem}_{resize}{suffix}" validate:"required"`
	Paths        []string       `mapstructure:"paths" default:"[\"images\"]" validate:"min=1,dive,required"`
	SkipExisting bool           `mapstructure:"skip_existing" default:"true"`
	Resizes      map[string]any `mapstructure:"-"`
	Backend      string         `mapstructure:"backend" default:"imaging"`

	LogLevel    string `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn warning error"`
	LogFile     string `mapstructure:"log_file"`
	MetricsFile string `mapstructure:"metrics_file"`

	NATSURL       string        `mapstructure:"nats_url" validate:"omitempty,url"`
	ResultSubject string        `mapstructure:"result_subject" default:"thumbnails.pass.done" validate:"required_with=NATSURL"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" default:"500ms" validate:"gt=0"`
}

// configKeys lists every key so environment overrides apply even when the
// config file does not mention them.
var configKeys = []string{
	"enable", "output_path", "save_as", "paths", "skip_existing", "backend",
	"log_level", "log_file", "metrics_file", "nats_url", "result_subject", "watch_debounce",
}

// loadConfig layers struct defaults, the YAML config file and THUMBNAIL_*
// environment variables, in that order. configFile may be empty, in which
// case ./thumbnailer.yaml is used when present. logLevel, when set, wins over
// everything else.
func loadConfig(configFile, logLevel string) (config, error) {
	_ = godotenv.Load()

	var base config
	if err := defaults.Set(&base); err != nil {
		return config{}, fmt.Errorf("set defaults: %w", err)
	}

	v := viper.New()
	v.SetDefault("enable", base.Enable)
	v.SetDefault("output_path", base.OutputPath)
	v.SetDefault("save_as", base.SaveAs)
	v.SetDefault("paths", base.Paths)
	v.SetDefault("skip_existing", base.SkipExisting)
	v.SetDefault("backend", base.Backend)
	v.SetDefault("log_level", base.LogLevel)
	v.SetDefault("result_subject", base.ResultSubject)
	v.SetDefault("watch_debounce", base.WatchDebounce)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("thumbnailer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if logLevel != "" {
		v.Set("log_level", logLevel)
	}

	var cfg config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Resizes, err = loadResizes(v); err != nil {
		return config{}, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validator.New().Struct(cfg); err != nil {
		return config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadResizes returns the resize specs with their names exactly as written.
// Viper folds map keys to lower case, so YAML and JSON files are decoded again
// here. THUMBNAIL_RESIZES replaces the file's specs entirely.
func loadResizes(v *viper.Viper) (map[string]any, error) {
	if raw := getenv(envPrefix+"_RESIZES", ""); raw != "" {
		resizes, err := parseResizes(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s_RESIZES: %w", envPrefix, err)
		}
		return resizes, nil
	}

	resizes := map[string]any{}
	path := v.ConfigFileUsed()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var file struct {
			Resizes map[string]any `yaml:"resizes"`
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode resizes in %s: %w", path, err)
		}
		for name, raw := range file.Resizes {
			resizes[name] = raw
		}
	default:
		for name, raw := range v.GetStringMap("resizes") {
			resizes[name] = raw
		}
	}
	return resizes, nil
}

// parseResizes reads the "name:spec,name:spec" form of THUMBNAIL_RESIZES. The
// spec strings themselves are compiled later, together with file-based specs.
func parseResizes(raw string) (map[string]any, error) {
	resizes := map[string]any{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid resize format '%s', expected 'name:spec'", pair)
		}

		name := strings.TrimSpace(parts[0])
		spec := strings.TrimSpace(parts[1])
		if name == "" || spec == "" {
			return nil, fmt.Errorf("invalid resize format '%s', expected 'name:spec'", pair)
		}
		if _, dup := resizes[name]; dup {
			return nil, fmt.Errorf("duplicate resize name '%s'", name)
		}
		resizes[name] = spec
	}
	if len(resizes) == 0 {
		return nil, fmt.Errorf("no resizes in '%s'", raw)
	}
	return resizes, nil
}

func (c config) settings(force bool) process.Settings {
	return process.Settings{
		Enable:       c.Enable,
		OutputPath:   c.OutputPath,
		Paths:        c.Paths,
		SaveAs:       c.SaveAs,
		SkipExisting: c.SkipExisting && !force,
		Resizes:      c.Resizes,
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
