package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Plotter  *plotterConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"plotterd.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"PLOTTERD_ADDRESS" default:":3333"`
	MetricsAddress  string `envconfig:"PLOTTERD_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"PLOTTERD_BASE_URL" default:"http://localhost:3333"`
	LogLevel        string `envconfig:"PLOTTERD_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"PLOTTERD_LOG_FORMAT" default:"console"`
	MigrationFolder string `envconfig:"PLOTTERD_MIGRATIONS_FOLDER" default:""`
}

type plotterConfig struct {
	// Physical-setup expectations checked by the pre-arm guard.
	PaperSize        string `envconfig:"PLOTTERD_PAPER_SIZE" default:"a4"`
	PaperOrientation string `envconfig:"PLOTTERD_PAPER_ORIENTATION" default:"landscape"`

	// Pre-flight checklist items that must be marked done before arming.
	ChecklistItems []string `envconfig:"PLOTTERD_CHECKLIST_ITEMS" default:"paper_secured,origin_set,pen_tested"`

	PenChangeOverheadSeconds float64       `envconfig:"PLOTTERD_PEN_CHANGE_OVERHEAD" default:"25"`
	HeartbeatInterval        time.Duration `envconfig:"PLOTTERD_HEARTBEAT_INTERVAL" default:"5s"`
	RecoveryGracePeriod      time.Duration `envconfig:"PLOTTERD_RECOVERY_GRACE_PERIOD" default:"5m"`
	HookTimeout              time.Duration `envconfig:"PLOTTERD_HOOK_TIMEOUT" default:"30s"`

	// Hook specs, format "<state>=<command|script|webhook>:<target>".
	Hooks []string `envconfig:"PLOTTERD_HOOKS" default:""`

	// External vector optimizer, invoked with a file-in/file-out contract.
	OptimizerBin    string `envconfig:"PLOTTERD_OPTIMIZER_BIN" default:"vpype"`
	OptimizerPreset string `envconfig:"PLOTTERD_OPTIMIZER_PRESET" default:"linemerge"`
	WorkDir         string `envconfig:"PLOTTERD_WORK_DIR" default:"/var/lib/plotterd"`

	// Device selection: "sim" for the simulated device, otherwise a serial
	// device path handled by an external driver binding.
	Device string `envconfig:"PLOTTERD_DEVICE" default:"sim"`

	// Camera/recording collaborator endpoint. Empty disables the probe.
	CameraURL string `envconfig:"PLOTTERD_CAMERA_URL" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config with defaults only, ignoring the environment.
// Used by tests.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "sqlite", Name: ":memory:"},
		Service:  &svcConfig{Address: ":3333", MetricsAddress: ":8080", LogLevel: "info"},
		Plotter: &plotterConfig{
			PaperSize:                "a4",
			PaperOrientation:         "landscape",
			ChecklistItems:           []string{"paper_secured", "origin_set", "pen_tested"},
			PenChangeOverheadSeconds: 25,
			HeartbeatInterval:        5 * time.Second,
			RecoveryGracePeriod:      5 * time.Minute,
			HookTimeout:              30 * time.Second,
			Device:                   "sim",
			WorkDir:                  "/tmp/plotterd",
		},
	}
}
