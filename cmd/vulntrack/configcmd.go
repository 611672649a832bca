package vulntrack

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vulntrack/vulntrack/internal/config"
	"github.com/vulntrack/vulntrack/internal/engine"
)

var (
	cfgOutput string
	cfgForce  bool
)

func init() {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	rootCmd.AddCommand(cfgCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .vulntrack.yml with the default settings",
		RunE:  runConfigInit,
	}
	initCmd.Flags().StringVar(&cfgOutput, "output", ".vulntrack.yml", "output file path")
	initCmd.Flags().BoolVar(&cfgForce, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings after layering flags, env and config files",
		RunE:  runConfigShow,
	}
	cfgCmd.AddCommand(showCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(cfgOutput); err == nil && !cfgForce {
		return fmt.Errorf("%s exists (use --force to overwrite)", cfgOutput)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(cfgOutput, []byte(config.Template), 0644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", cfgOutput)
	return nil
}

// effective is the printable form of settings. Secrets are masked.
type effective struct {
	APIURL         string                    `yaml:"api_url" json:"api_url"`
	Source         string                    `yaml:"source" json:"source"`
	Timeout        string                    `yaml:"timeout" json:"timeout"`
	RetestInterval string                    `yaml:"retest_interval" json:"retest_interval"`
	ExportDir      string                    `yaml:"export_dir" json:"export_dir"`
	NoColor        bool                      `yaml:"no_color" json:"no_color"`
	RiskyTop       int                       `yaml:"risky_top" json:"risky_top"`
	BreachTop      int                       `yaml:"breach_top" json:"breach_top"`
	ExcludeHosts   []string                  `yaml:"exclude_hosts,omitempty" json:"exclude_hosts,omitempty"`
	SLA            map[string]int            `yaml:"sla" json:"sla"`
	Workload       engine.WorkloadThresholds `yaml:"workload" json:"workload"`
	S3Endpoint     string                    `yaml:"s3_endpoint,omitempty" json:"s3_endpoint,omitempty"`
	S3Bucket       string                    `yaml:"s3_bucket,omitempty" json:"s3_bucket,omitempty"`
	S3AccessKey    string                    `yaml:"s3_access_key,omitempty" json:"s3_access_key,omitempty"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	e := effective{
		APIURL:         s.APIURL,
		Source:         string(s.Source),
		Timeout:        s.Timeout.String(),
		RetestInterval: s.RetestInterval.String(),
		ExportDir:      s.ExportDir,
		NoColor:        s.NoColor,
		RiskyTop:       s.RiskyTop,
		BreachTop:      s.BreachTop,
		ExcludeHosts:   s.ExcludeHosts,
		SLA:            map[string]int{},
		Workload:       s.Workload,
		S3Endpoint:     pickString("", s.S3.Endpoint),
		S3Bucket:       pickString("", s.S3.Bucket),
	}
	if e.APIURL == "" {
		e.APIURL = defaultAPIURL
	}
	for sev, days := range s.SLA {
		e.SLA[string(sev)] = days
	}
	if ak := pickString("", s.S3.AccessKey); ak != "" {
		e.S3AccessKey = mask(ak)
	}
	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), e)
	}
	b, err := yaml.Marshal(&e)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
