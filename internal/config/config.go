// Package config loads service configuration from WAYFINDER_* environment
// variables and an optional YAML file, and reloads the navigation tuning
// when the file changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/database"
	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/navigation"
)

// EnvPrefix prefixes every environment variable, e.g. WAYFINDER_SERVER_PORT.
const EnvPrefix = "WAYFINDER"

// PathEnv names the variable holding the YAML config path.
const PathEnv = "WAYFINDER_CONFIG"

// ErrInvalid is returned when the loaded configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	GPS        GPSConfig        `mapstructure:"gps"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig holds HTTP server settings shared by the API and the worker.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequireTLS      bool          `mapstructure:"require_tls"`
}

// DatabaseConfig holds the journal database settings. The journal is kept in
// memory when Enabled is false.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Connection converts the section to a database.Config.
func (d DatabaseConfig) Connection() database.Config {
	return database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Name,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}

// RedisConfig enables cross-instance live status when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PubSubConfig enables the event bus when ProjectID is set.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// DirectionsConfig holds the OpenRouteService client and route cache settings.
type DirectionsConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Language        string        `mapstructure:"language"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSize       int           `mapstructure:"cache_size"`
	StaleIfErrorTTL time.Duration `mapstructure:"stale_if_error_ttl"`
	// StoreDir keeps the last good route per request on disk when set.
	StoreDir string `mapstructure:"store_dir"`
}

// SpeechConfig points at the speech relay. Announcements are only logged
// when RelayURL is empty.
type SpeechConfig struct {
	RelayURL  string        `mapstructure:"relay_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Language  string        `mapstructure:"language"`
	Rate      float64       `mapstructure:"rate"`
	Volume    float64       `mapstructure:"volume"`
	ToneAsset string        `mapstructure:"tone_asset"`
	QueueSize int           `mapstructure:"queue_size"`
}

// Voice returns the configured synthesis parameters.
func (s SpeechConfig) Voice() audio.Voice {
	return audio.Voice{Language: s.Language, Rate: s.Rate, Volume: audio.ClampVolume(s.Volume)}
}

// GPSConfig selects the gpsfeed position source: a serial NMEA receiver on
// Port, or a YAML track when ReplayFile is set.
type GPSConfig struct {
	Port       string `mapstructure:"port"`
	BaudRate   int    `mapstructure:"baud_rate"`
	ReplayFile string `mapstructure:"replay_file"`
	Realtime   bool   `mapstructure:"realtime"`
}

// NavigationConfig is the per-session tuning. It is the only section
// reloaded at runtime.
type NavigationConfig struct {
	ArrivalThresholdMeters float64       `mapstructure:"arrival_threshold_m"`
	FarThresholdMeters     float64       `mapstructure:"far_threshold_m"`
	NearThresholdMeters    float64       `mapstructure:"near_threshold_m"`
	AlertPolicy            string        `mapstructure:"alert_policy"`
	BeepStartDistance      float64       `mapstructure:"beep_start_m"`
	BeepPeriod             time.Duration `mapstructure:"beep_period"`
	ToneTurnsOnly          bool          `mapstructure:"tone_turns_only"`
	RampStartDistance      float64       `mapstructure:"ramp_start_m"`
	RampNearDistance       float64       `mapstructure:"ramp_near_m"`
	RampMinVolume          float64       `mapstructure:"ramp_min_volume"`
	RampMaxVolume          float64       `mapstructure:"ramp_max_volume"`
	RampPeriod             time.Duration `mapstructure:"ramp_period"`
	MaxSessions            int           `mapstructure:"max_sessions"`
	QueueSize              int           `mapstructure:"queue_size"`
}

// Thresholds returns the alert thresholds; a zero distance disables that band.
func (n NavigationConfig) Thresholds() []alert.Threshold {
	var ts []alert.Threshold
	if n.FarThresholdMeters > 0 {
		ts = append(ts, alert.Threshold{Kind: alert.KindFar, DistanceMeters: n.FarThresholdMeters})
	}
	if n.NearThresholdMeters > 0 {
		ts = append(ts, alert.Threshold{Kind: alert.KindNear, DistanceMeters: n.NearThresholdMeters})
	}
	return ts
}

// Session builds the session tuning. Tone and voice come from the caller
// since the tone is loaded once per process.
func (n NavigationConfig) Session(voice audio.Voice, tone []byte) navigation.Config {
	return navigation.Config{
		ArrivalThresholdMeters: n.ArrivalThresholdMeters,
		Thresholds:             n.Thresholds(),
		AlertPolicy:            navigation.AlertPolicy(n.AlertPolicy),
		BeepStartDistance:      n.BeepStartDistance,
		BeepPeriod:             n.BeepPeriod,
		ToneTurnsOnly:          n.ToneTurnsOnly,
		RampStartDistance:      n.RampStartDistance,
		RampNearDistance:       n.RampNearDistance,
		RampMinVolume:          n.RampMinVolume,
		RampMaxVolume:          n.RampMaxVolume,
		RampPeriod:             n.RampPeriod,
		Voice:                  voice,
		Tone:                   tone,
	}
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// Insecure talks plain gRPC to the collector.
	Insecure       bool          `mapstructure:"insecure"`
	SampleRatio    float64       `mapstructure:"sample_ratio"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// AuthConfig holds device token settings.
type AuthConfig struct {
	// JWTSigningKey signs and verifies device tokens.
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	// Disabled leaves the navigation routes open, for local development.
	Disabled bool `mapstructure:"disabled"`
}

// RequireAPI checks the settings only the API server needs.
func (c *Config) RequireAPI() error {
	switch {
	case c.Directions.APIKey == "":
		return fmt.Errorf("%w: directions.api_key is required", ErrInvalid)
	case !c.Auth.Disabled && c.Auth.JWTSigningKey == "":
		return fmt.Errorf("%w: auth.jwt_signing_key is required unless auth.disabled", ErrInvalid)
	}
	return nil
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return fmt.Errorf("%w: server.port is required", ErrInvalid)
	case c.PubSub.ProjectID != "" && c.PubSub.Topic == "":
		return fmt.Errorf("%w: pubsub.topic is required with pubsub.project_id", ErrInvalid)
	case c.Speech.Volume < 0 || c.Speech.Volume > 1:
		return fmt.Errorf("%w: speech.volume %v outside [0,1]", ErrInvalid, c.Speech.Volume)
	}
	if err := c.Navigation.Session(c.Speech.Voice(), nil).Validate(); err != nil {
		return fmt.Errorf("%w: navigation: %w", ErrInvalid, err)
	}
	if _, err := alert.NewThresholds(c.Navigation.Thresholds()); err != nil {
		return fmt.Errorf("%w: navigation thresholds: %w", ErrInvalid, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wayfinder")
	v.SetDefault("database.password", "localdev")
	v.SetDefault("database.name", "wayfinder")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "navigation-events")
	v.SetDefault("pubsub.subscription", "navigation-journal")

	v.SetDefault("directions.api_key", "")
	v.SetDefault("directions.base_url", "")
	v.SetDefault("directions.language", "en")
	v.SetDefault("directions.timeout", 10*time.Second)
	v.SetDefault("directions.cache_ttl", 5*time.Minute)
	v.SetDefault("directions.cache_size", 256)
	v.SetDefault("directions.stale_if_error_ttl", time.Hour)
	v.SetDefault("directions.store_dir", "")

	voice := audio.DefaultVoice()
	v.SetDefault("speech.relay_url", "")
	v.SetDefault("speech.token", "")
	v.SetDefault("speech.timeout", 3*time.Second)
	v.SetDefault("speech.language", voice.Language)
	v.SetDefault("speech.rate", voice.Rate)
	v.SetDefault("speech.volume", voice.Volume)
	v.SetDefault("speech.tone_asset", "")
	v.SetDefault("speech.queue_size", 8)

	v.SetDefault("gps.port", "")
	v.SetDefault("gps.baud_rate", 9600)
	v.SetDefault("gps.replay_file", "")
	v.SetDefault("gps.realtime", true)

	v.SetDefault("navigation.arrival_threshold_m", navigation.DefaultArrivalThreshold)
	v.SetDefault("navigation.far_threshold_m", geo.FeetToMeters(100))
	v.SetDefault("navigation.near_threshold_m", geo.FeetToMeters(20))
	v.SetDefault("navigation.alert_policy", string(navigation.PolicyThreshold))
	v.SetDefault("navigation.beep_start_m", navigation.DefaultBeepStartDistance)
	v.SetDefault("navigation.beep_period", navigation.DefaultBeepPeriod)
	v.SetDefault("navigation.tone_turns_only", false)
	v.SetDefault("navigation.ramp_start_m", navigation.DefaultRampStartDistance)
	v.SetDefault("navigation.ramp_near_m", navigation.DefaultRampNearDistance)
	v.SetDefault("navigation.ramp_min_volume", navigation.DefaultRampMinVolume)
	v.SetDefault("navigation.ramp_max_volume", navigation.DefaultRampMaxVolume)
	v.SetDefault("navigation.ramp_period", navigation.DefaultRampPeriod)
	v.SetDefault("navigation.max_sessions", 1000)
	v.SetDefault("navigation.queue_size", 32)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.export_interval", 15*time.Second)

	v.SetDefault("auth.jwt_signing_key", "")
	v.SetDefault("auth.disabled", false)
}

// Loader reads configuration and tracks the current navigation tuning.
type Loader struct {
	v      *viper.Viper
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Config
}

// Load reads configuration from the environment and, when path is non-empty
// (or WAYFINDER_CONFIG is set), from a YAML file.
func Load(path string, logger zerolog.Logger) (*Loader, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	l := &Loader{v: v, path: path, logger: logger}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Config returns the current configuration. Callers must not modify it.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Path is the config file in use, or empty.
func (l *Loader) Path() string {
	return l.path
}

// Watch reloads the file on change and passes the new navigation tuning to
// onChange. Other sections need a restart. Invalid files are logged and
// ignored. Watch does nothing without a config file.
func (l *Loader) Watch(onChange func(NavigationConfig)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.reload(e.Name, onChange)
	})
	l.v.WatchConfig()
}

func (l *Loader) reload(name string, onChange func(NavigationConfig)) {
	next, err := l.decode()
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("file", name).Msg("ignoring config change")
		return
	}

	l.mu.Lock()
	prev := l.current
	merged := *prev
	merged.Navigation = next.Navigation
	l.current = &merged
	l.mu.Unlock()

	if merged.Navigation == prev.Navigation {
		return
	}
	l.logger.Info().Str("file", name).Msg("navigation config reloaded")
	if onChange != nil {
		onChange(merged.Navigation)
	}
}
