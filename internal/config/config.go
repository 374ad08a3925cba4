package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so YAML values can be written as "500ms" or
// "12h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the structured configuration document, read once at startup and
// passed explicitly to every component. There is no global config state.
type Config struct {
	Bus     BusConf     `yaml:"bus"`
	Sensors SensorsConf `yaml:"sensors"`
	Polling PollingConf `yaml:"polling"`
	Rain    RainConf    `yaml:"rain"`
	CSV     CSVConf     `yaml:"csv"`
	DB      DBConf      `yaml:"db"`
	HTTP    HTTPConf    `yaml:"http"`
	Export  ExportConf  `yaml:"export"`
	Sun     SunConf     `yaml:"sun"`
	Station StationConf `yaml:"station"`
}

type BusConf struct {
	Port     string   `yaml:"port"`
	BaudRate int      `yaml:"baud_rate"`
	DataBits int      `yaml:"data_bits"`
	Parity   string   `yaml:"parity"`
	StopBits int      `yaml:"stop_bits"`
	Timeout  Duration `yaml:"timeout"`
}

// SensorsConf maps each sensor group to its Modbus slave address. A zero
// address disables the group.
type SensorsConf struct {
	Environment   byte `yaml:"environment"`
	UV            byte `yaml:"uv"`
	AQI           byte `yaml:"aqi"`
	WindSpeed     byte `yaml:"wind_speed"`
	WindDirection byte `yaml:"wind_direction"`
	Rain          byte `yaml:"rain"`
}

type PollingConf struct {
	Interval        Duration `yaml:"interval"`
	CycleInterval   Duration `yaml:"cycle_interval"`
	Retries         int      `yaml:"retries"`
	StalenessCycles int      `yaml:"staleness_cycles"`
}

type RainConf struct {
	ResetWindow Duration `yaml:"reset_window"`
	NoiseFloor  float64  `yaml:"noise_floor"`
}

type CSVConf struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

type DBConf struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type HTTPConf struct {
	Port string `yaml:"port"`
}

// ExportConf configures the optional FTP mirror of completed daily CSV files.
// An empty host disables export.
type ExportConf struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dir      string `yaml:"dir"`
}

type SunConf struct {
	DataFile       string `yaml:"data_file"`
	DefaultSunrise string `yaml:"default_sunrise"`
	DefaultSunset  string `yaml:"default_sunset"`
}

type StationConf struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// Default returns the built-in configuration, matching the station's factory
// wiring: one RS-485 bus at 9600 8N1 with slaves 1..6.
func Default() Config {
	return Config{
		Bus: BusConf{
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
			Timeout:  Duration(500 * time.Millisecond),
		},
		Sensors: SensorsConf{
			Environment:   1,
			UV:            2,
			AQI:           3,
			WindSpeed:     4,
			WindDirection: 5,
			Rain:          6,
		},
		Polling: PollingConf{
			Interval:        Duration(1 * time.Second),
			CycleInterval:   Duration(2 * time.Second),
			Retries:         2,
			StalenessCycles: 3,
		},
		Rain: RainConf{
			ResetWindow: Duration(12 * time.Hour),
			NoiseFloor:  0,
		},
		CSV: CSVConf{
			Dir:           "csv_data",
			RetentionDays: 7,
		},
		DB: DBConf{
			Path:          "data/awos.db",
			RetentionDays: 7,
		},
		HTTP: HTTPConf{
			Port: "8080",
		},
		Sun: SunConf{
			DataFile:       "sun_data.csv",
			DefaultSunrise: "06:00",
			DefaultSunset:  "18:00",
		},
		Station: StationConf{
			Name:     "AWOS",
			Timezone: "Asia/Karachi",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports configuration errors that are fatal at startup.
func (c *Config) Validate() error {
	if c.Bus.Port == "" {
		return fmt.Errorf("config: bus.port is required")
	}
	if c.Bus.BaudRate <= 0 {
		return fmt.Errorf("config: bus.baud_rate must be positive")
	}
	switch c.Bus.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("config: bus.parity must be N, E or O, got %q", c.Bus.Parity)
	}
	if c.Polling.CycleInterval <= 0 {
		return fmt.Errorf("config: polling.cycle_interval must be positive")
	}
	if c.Polling.Retries < 0 {
		return fmt.Errorf("config: polling.retries must not be negative")
	}
	if c.Polling.StalenessCycles < 1 {
		return fmt.Errorf("config: polling.staleness_cycles must be at least 1")
	}
	if c.Rain.ResetWindow <= 0 {
		return fmt.Errorf("config: rain.reset_window must be positive")
	}
	if c.Rain.NoiseFloor < 0 {
		return fmt.Errorf("config: rain.noise_floor must not be negative")
	}
	if c.CSV.RetentionDays < 1 {
		return fmt.Errorf("config: csv.retention_days must be at least 1")
	}
	if !c.anySensorEnabled() {
		return fmt.Errorf("config: no sensors configured")
	}
	return nil
}

func (c *Config) anySensorEnabled() bool {
	s := c.Sensors
	return s.Environment != 0 || s.UV != 0 || s.AQI != 0 ||
		s.WindSpeed != 0 || s.WindDirection != 0 || s.Rain != 0
}

// Location loads the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Station.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
