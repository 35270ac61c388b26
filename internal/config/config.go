package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON config file looked up in the config directory.
const ConfigFileName = "simcore.cfg.json"

// SimConfig holds scheduler and vehicle simulation settings
type SimConfig struct {
	Frequency              float64 `json:"frequency" mapstructure:"frequency"`
	PhysicsFrequency       float64 `json:"physicsFrequency" mapstructure:"physicsFrequency"`
	PhysicsSubsteps        int     `json:"physicsSubsteps" mapstructure:"physicsSubsteps"`
	MinFPS                 float64 `json:"minFps" mapstructure:"minFps"`
	SimMode                string  `json:"simMode" mapstructure:"simMode"`
	BenchmarkSpeed         float64 `json:"benchmarkSpeed" mapstructure:"benchmarkSpeed"`
	GatedTicksAdvanceFrame bool    `json:"gatedTicksAdvanceFrame" mapstructure:"gatedTicksAdvanceFrame"`
	BoostMax               float64 `json:"boostMax" mapstructure:"boostMax"`
	Autoshift              bool    `json:"autoshift" mapstructure:"autoshift"`
}

// PathsConfig holds the data directories the physics registry reads from
type PathsConfig struct {
	BuiltinDir  string `json:"builtinDir" mapstructure:"builtinDir"`
	UserDir     string `json:"userDir" mapstructure:"userDir"`
	DefaultTire string `json:"defaultTire" mapstructure:"defaultTire"`
}

// SteeringConfig holds speed sensitive steering settings for one surface class
type SteeringConfig struct {
	Effect    float64 `json:"effect" mapstructure:"effect"`
	VelFactor float64 `json:"velFactor" mapstructure:"velFactor"`
}

// InputConfig holds control translation settings
type InputConfig struct {
	Gravel          SteeringConfig `json:"gravel" mapstructure:"gravel"`
	Asphalt         SteeringConfig `json:"asphalt" mapstructure:"asphalt"`
	OneAxisThrottle bool           `json:"oneAxisThrottle" mapstructure:"oneAxisThrottle"`
	AsphaltTrack    bool           `json:"asphaltTrack" mapstructure:"asphaltTrack"`
}

// ForceFeedbackConfig holds haptic output settings
type ForceFeedbackConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	Gain    float64       `json:"gain" mapstructure:"gain"`
	Invert  bool          `json:"invert" mapstructure:"invert"`
	Period  time.Duration `json:"period" mapstructure:"period"`
}

// RemoteConfig holds the background command service settings
type RemoteConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
	Path    string `json:"path" mapstructure:"path"`
	Queue   int    `json:"queue" mapstructure:"queue"`
}

// SQLiteConfig holds SQLite records backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds the Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig holds session records storage settings
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// InfluxConfig holds the InfluxDB connection
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// TelemetryConfig holds InfluxDB per-tick telemetry settings
type TelemetryConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	EveryTicks int    `json:"everyTicks" mapstructure:"everyTicks"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// CarConfig names one car of the headless session.
type CarConfig struct {
	Name       string  `json:"name" mapstructure:"name"`
	Surface    string  `json:"surface" mapstructure:"surface"`
	Tire       string  `json:"tire" mapstructure:"tire"`
	Suspension string  `json:"suspension" mapstructure:"suspension"`
	Speed      float64 `json:"speed" mapstructure:"speed"`
}

// SessionConfig describes the session the headless runner drives.
type SessionConfig struct {
	Track    string        `json:"track" mapstructure:"track"`
	Pretime  float64       `json:"pretime" mapstructure:"pretime"`
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	Cars     []CarConfig   `json:"cars" mapstructure:"cars"`
}

// StatusConfig controls the status file.
type StatusConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Path     string        `json:"path" mapstructure:"path"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers default values for every known key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./simlogs")

	viper.SetDefault("sim.frequency", 82.0)
	viper.SetDefault("sim.physicsFrequency", 160.0)
	viper.SetDefault("sim.physicsSubsteps", 24)
	viper.SetDefault("sim.minFps", 10.0)
	viper.SetDefault("sim.simMode", "normal")
	viper.SetDefault("sim.benchmarkSpeed", 1.0)
	viper.SetDefault("sim.gatedTicksAdvanceFrame", true)
	viper.SetDefault("sim.boostMax", 3.0)
	viper.SetDefault("sim.autoshift", true)

	viper.SetDefault("paths.builtinDir", "./data/carsim")
	viper.SetDefault("paths.userDir", "./user/carsim")
	viper.SetDefault("paths.defaultTire", "")

	viper.SetDefault("input.gravel.effect", 0.574)
	viper.SetDefault("input.gravel.velFactor", 0.626)
	viper.SetDefault("input.asphalt.effect", 0.650)
	viper.SetDefault("input.asphalt.velFactor", 0.730)
	viper.SetDefault("input.oneAxisThrottle", false)
	viper.SetDefault("input.asphaltTrack", false)

	viper.SetDefault("forceFeedback.enabled", false)
	viper.SetDefault("forceFeedback.gain", 1.0)
	viper.SetDefault("forceFeedback.invert", false)
	viper.SetDefault("forceFeedback.period", "20ms")

	viper.SetDefault("remote.enabled", false)
	viper.SetDefault("remote.address", "127.0.0.1:5555")
	viper.SetDefault("remote.path", "/")
	viper.SetDefault("remote.queue", 64)

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./records.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "simcore")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "simcore")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.everyTicks", 8)
	viper.SetDefault("telemetry.bucket", "vehicle_telemetry")
	viper.SetDefault("telemetry.backupPath", "./telemetry_backup.lp.gz")

	viper.SetDefault("session.track", "default")
	viper.SetDefault("session.pretime", 3.0)
	viper.SetDefault("session.duration", "0s")
	viper.SetDefault("session.cars", []map[string]any{{"name": "player", "speed": 0.0}})

	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.path", "./simlogs/status.json")
	viper.SetDefault("status.interval", "1s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "simcore")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the scheduler/simulation configuration.
func GetSimConfig() SimConfig {
	return SimConfig{
		Frequency:              viper.GetFloat64("sim.frequency"),
		PhysicsFrequency:       viper.GetFloat64("sim.physicsFrequency"),
		PhysicsSubsteps:        viper.GetInt("sim.physicsSubsteps"),
		MinFPS:                 viper.GetFloat64("sim.minFps"),
		SimMode:                viper.GetString("sim.simMode"),
		BenchmarkSpeed:         viper.GetFloat64("sim.benchmarkSpeed"),
		GatedTicksAdvanceFrame: viper.GetBool("sim.gatedTicksAdvanceFrame"),
		BoostMax:               viper.GetFloat64("sim.boostMax"),
		Autoshift:              viper.GetBool("sim.autoshift"),
	}
}

// GetPathsConfig returns the physics data directories.
func GetPathsConfig() PathsConfig {
	return PathsConfig{
		BuiltinDir:  viper.GetString("paths.builtinDir"),
		UserDir:     viper.GetString("paths.userDir"),
		DefaultTire: viper.GetString("paths.defaultTire"),
	}
}

// GetInputConfig returns control translation settings.
func GetInputConfig() InputConfig {
	return InputConfig{
		Gravel: SteeringConfig{
			Effect:    viper.GetFloat64("input.gravel.effect"),
			VelFactor: viper.GetFloat64("input.gravel.velFactor"),
		},
		Asphalt: SteeringConfig{
			Effect:    viper.GetFloat64("input.asphalt.effect"),
			VelFactor: viper.GetFloat64("input.asphalt.velFactor"),
		},
		OneAxisThrottle: viper.GetBool("input.oneAxisThrottle"),
		AsphaltTrack:    viper.GetBool("input.asphaltTrack"),
	}
}

// GetForceFeedbackConfig returns haptic output settings.
func GetForceFeedbackConfig() ForceFeedbackConfig {
	return ForceFeedbackConfig{
		Enabled: viper.GetBool("forceFeedback.enabled"),
		Gain:    viper.GetFloat64("forceFeedback.gain"),
		Invert:  viper.GetBool("forceFeedback.invert"),
		Period:  viper.GetDuration("forceFeedback.period"),
	}
}

// GetRemoteConfig returns the background command service settings.
func GetRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Enabled: viper.GetBool("remote.enabled"),
		Address: viper.GetString("remote.address"),
		Path:    viper.GetString("remote.path"),
		Queue:   viper.GetInt("remote.queue"),
	}
}

// GetStorageConfig returns the session records storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB connection settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetTelemetryConfig returns the per-tick telemetry configuration.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:    viper.GetBool("telemetry.enabled"),
		EveryTicks: viper.GetInt("telemetry.everyTicks"),
		Bucket:     viper.GetString("telemetry.bucket"),
		BackupPath: viper.GetString("telemetry.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetSessionConfig returns the headless session description. A session
// without cars gets a single local car named "player".
func GetSessionConfig() SessionConfig {
	cfg := SessionConfig{
		Track:    viper.GetString("session.track"),
		Pretime:  viper.GetFloat64("session.pretime"),
		Duration: viper.GetDuration("session.duration"),
	}
	if err := viper.UnmarshalKey("session.cars", &cfg.Cars); err != nil || len(cfg.Cars) == 0 {
		cfg.Cars = []CarConfig{{Name: "player"}}
	}
	return cfg
}

// GetStatusConfig returns the status file settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		Path:     viper.GetString("status.path"),
		Interval: viper.GetDuration("status.interval"),
	}
}
