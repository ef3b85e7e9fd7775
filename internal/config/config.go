// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Commissioning CommissioningConfig `mapstructure:"commissioning"`
	Flashing      FlashingConfig      `mapstructure:"flashing"`
	Store         StoreConfig         `mapstructure:"store"`
	App           AppConfig           `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents the optional attempt history database
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	Retention      time.Duration `mapstructure:"retention"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// CommissioningConfig represents servo bus commissioning settings
type CommissioningConfig struct {
	PortPatterns        map[string][]string `mapstructure:"port_patterns"`
	NegotiationBauds    []int               `mapstructure:"negotiation_bauds"`
	ReducedVoltageBaud  int                 `mapstructure:"reduced_voltage_baud"`
	ScanMinID           int                 `mapstructure:"scan_min_id"`
	ScanMaxID           int                 `mapstructure:"scan_max_id"`
	ReadTimeout         time.Duration       `mapstructure:"read_timeout"`
	SettleDelay         time.Duration       `mapstructure:"settle_delay"`
	MotorTickInterval   time.Duration       `mapstructure:"motor_tick_interval"`
	DefaultBaudRate     int                 `mapstructure:"default_baud_rate"`
	DefaultTemperature  int                 `mapstructure:"default_temperature_limit"`
	DefaultReturnDelay  int                 `mapstructure:"default_return_delay"`
	ReducedVoltageParts []string            `mapstructure:"reduced_voltage_parts"`
}

// FlashingConfig represents firmware module flashing settings
type FlashingConfig struct {
	Command          string        `mapstructure:"command"`
	Args             []string      `mapstructure:"args"`
	BinaryDir        string        `mapstructure:"binary_dir"`
	BinarySuffix     string        `mapstructure:"binary_suffix"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ProbeUSB         bool          `mapstructure:"probe_usb"`
	DFUVendorID      string        `mapstructure:"dfu_vendor_id"`
	DFUProductID     string        `mapstructure:"dfu_product_id"`
	ModuleTickPeriod time.Duration `mapstructure:"module_tick_interval"`
}

// StoreConfig locates the on-disk robot part configuration files
type StoreConfig struct {
	ConfigDir string `mapstructure:"config_dir"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith loads configuration through the given viper instance
func LoadWith(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/servo-commissioning")

	// Environment variable support
	v.SetEnvPrefix("SERVO_COMMISSIONING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A commissioning station runs fine on defaults alone
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "servo_commissioning")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "720h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Commissioning defaults
	v.SetDefault("commissioning.port_patterns", map[string][]string{
		"linux":  {"/dev/ttyUSB*", "/dev/ttyACM*"},
		"darwin": {"/dev/tty.usbmodem*"},
	})
	v.SetDefault("commissioning.negotiation_bauds", []int{57600, 1000000})
	v.SetDefault("commissioning.reduced_voltage_baud", 1000000)
	v.SetDefault("commissioning.scan_min_id", 0)
	v.SetDefault("commissioning.scan_max_id", 39)
	v.SetDefault("commissioning.read_timeout", "20ms")
	v.SetDefault("commissioning.settle_delay", "10ms")
	v.SetDefault("commissioning.motor_tick_interval", "45ms")
	v.SetDefault("commissioning.default_baud_rate", 1000000)
	v.SetDefault("commissioning.default_temperature_limit", 55)
	v.SetDefault("commissioning.default_return_delay", 20)
	v.SetDefault("commissioning.reduced_voltage_parts", []string{"head"})

	// Flashing defaults
	v.SetDefault("flashing.command", "dfu-util")
	v.SetDefault("flashing.args", []string{"-d", "0483:df11", "-a", "0", "-s", "0x08000000", "-D"})
	v.SetDefault("flashing.binary_dir", "~/dev/binaries")
	v.SetDefault("flashing.binary_suffix", "-firmware.bin")
	v.SetDefault("flashing.timeout", "2m")
	v.SetDefault("flashing.probe_usb", true)
	v.SetDefault("flashing.dfu_vendor_id", "0483")
	v.SetDefault("flashing.dfu_product_id", "df11")
	v.SetDefault("flashing.module_tick_interval", "70ms")

	// Store defaults
	v.SetDefault("store.config_dir", "~/dev/reachy_pyluos_hal/reachy_pyluos_hal/config")

	// App defaults
	v.SetDefault("app.name", "servo-commissioning")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when the database is enabled")
	}

	c := config.Commissioning
	if len(c.NegotiationBauds) != 2 {
		return fmt.Errorf("commissioning.negotiation_bauds must list exactly two rates, got %v", c.NegotiationBauds)
	}
	for _, baud := range c.NegotiationBauds {
		if baud <= 0 {
			return fmt.Errorf("commissioning.negotiation_bauds has invalid rate %d", baud)
		}
	}
	if c.ScanMinID < 0 || c.ScanMaxID < c.ScanMinID || c.ScanMaxID > 252 {
		return fmt.Errorf("commissioning scan range [%d, %d] is invalid", c.ScanMinID, c.ScanMaxID)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("commissioning.read_timeout must be positive")
	}
	if c.MotorTickInterval <= 0 || config.Flashing.ModuleTickPeriod <= 0 {
		return fmt.Errorf("tick intervals must be positive")
	}
	if config.Flashing.Command == "" {
		return fmt.Errorf("flashing.command is required")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}

// ExpandPath resolves a leading "~" against the user's home directory
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
