package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulntrack/vulntrack/internal/types"
)

// FileConfig is the on-disk YAML configuration shape for vulntrack.
type FileConfig struct {
	APIURL         *string  `yaml:"api_url"`
	Source         *string  `yaml:"source"`
	Timeout        *string  `yaml:"timeout"`
	RetestInterval *string  `yaml:"retest_interval"`
	ExportDir      *string  `yaml:"export_dir"`
	NoColor        *bool    `yaml:"no_color"`
	RiskyTop       *int     `yaml:"risky_top"`
	BreachTop      *int     `yaml:"breach_top"`
	ExcludeHosts   []string `yaml:"exclude_hosts"`

	// SLA overrides days-overdue thresholds per severity name.
	SLA map[string]int `yaml:"sla"`

	Workload *WorkloadConfig `yaml:"workload"`
	S3       *S3Config       `yaml:"s3"`
}

// WorkloadConfig overrides the assignee health thresholds.
type WorkloadConfig struct {
	BusyOpen          *int `yaml:"busy_open"`
	OverloadedOpen    *int `yaml:"overloaded_open"`
	BusyOverdue       *int `yaml:"busy_overdue"`
	OverloadedOverdue *int `yaml:"overloaded_overdue"`
}

// S3Config is the optional object store for exports.
type S3Config struct {
	Endpoint  *string `yaml:"endpoint"`
	Bucket    *string `yaml:"bucket"`
	UseSSL    *bool   `yaml:"use_ssl"`
	AccessKey *string `yaml:"access_key"`
	SecretKey *string `yaml:"secret_key"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadLocal searches for a project-local config file in dir.
// It supports .vulntrack.yml/.yaml and vulntrack.yml/.yaml.
func LoadLocal(dir string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range []string{".vulntrack.yml", ".vulntrack.yaml", "vulntrack.yml", "vulntrack.yaml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, errors.New("no local config")
}

// GlobalDir is $XDG_CONFIG_HOME/vulntrack, falling back to ~/.config/vulntrack.
func GlobalDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", errors.New("no config dir")
	}
	return filepath.Join(base, "vulntrack"), nil
}

// GlobalPath is the global config file location.
func GlobalPath() (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	p, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, errors.New("no global config")
}

// Environment variables read by FromEnv.
const (
	EnvAPIURL      = "VULNTRACK_API_URL"
	EnvToken       = "VULNTRACK_TOKEN"
	EnvSource      = "VULNTRACK_SOURCE"
	EnvS3Endpoint  = "VULNTRACK_S3_ENDPOINT"
	EnvS3AccessKey = "VULNTRACK_S3_ACCESS_KEY"
	EnvS3SecretKey = "VULNTRACK_S3_SECRET_KEY"
)

// FromEnv builds a config layer from VULNTRACK_* variables. Unset variables
// leave fields nil so lower layers show through.
func FromEnv() FileConfig {
	var cfg FileConfig
	cfg.APIURL = envPtr(EnvAPIURL)
	cfg.Source = envPtr(EnvSource)
	endpoint, ak, sk := envPtr(EnvS3Endpoint), envPtr(EnvS3AccessKey), envPtr(EnvS3SecretKey)
	if endpoint != nil || ak != nil || sk != nil {
		cfg.S3 = &S3Config{Endpoint: endpoint, AccessKey: ak, SecretKey: sk}
	}
	return cfg
}

// Token returns VULNTRACK_TOKEN, which overrides the saved session.
func Token() string { return strings.TrimSpace(os.Getenv(EnvToken)) }

func envPtr(key string) *string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	return &v
}

// SLAOverrides converts the sla map to severity keys. Unknown severity
// names and negative values are dropped.
func (fc FileConfig) SLAOverrides() map[types.Severity]int {
	if len(fc.SLA) == 0 {
		return nil
	}
	out := make(map[types.Severity]int, len(fc.SLA))
	for k, v := range fc.SLA {
		sev := types.ParseSeverity(k)
		if sev == types.SevUnknown || v < 0 {
			continue
		}
		out[sev] = v
	}
	return out
}

// S3Layer returns the s3 block or an empty one.
func (fc FileConfig) S3Layer() S3Config {
	if fc.S3 == nil {
		return S3Config{}
	}
	return *fc.S3
}

// WorkloadLayer returns the workload block or an empty one.
func (fc FileConfig) WorkloadLayer() WorkloadConfig {
	if fc.Workload == nil {
		return WorkloadConfig{}
	}
	return *fc.Workload
}

// Template is written by `vulntrack config init`.
const Template = `# vulntrack configuration
api_url: http://localhost:8080
source: internal          # internal | cloudflare
timeout: 30s
retest_interval: 0s       # spacing between bulk retest calls
export_dir: .
risky_top: 3
breach_top: 5
# exclude_hosts:
#   - "*.staging.example.com"
sla:
  critical: 1
  high: 7
  medium: 30
  low: 90
  info: 180
workload:
  busy_open: 10
  overloaded_open: 25
  busy_overdue: 1
  overloaded_overdue: 5
# s3:
#   endpoint: minio.example.com:9000
#   bucket: vulntrack-exports
#   use_ssl: true
`
