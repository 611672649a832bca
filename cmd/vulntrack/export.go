package vulntrack

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/config"
	"github.com/vulntrack/vulntrack/internal/objstore"
	"github.com/vulntrack/vulntrack/internal/report"
)

var (
	exportFilter filterFlags

	flagFormat     string
	flagOutDir     string
	flagS3Bucket   string
	flagS3Prefix   string
	flagAllowEmpty bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the selected findings to CSV, XLSX or JSON",
		Example: `  vulntrack export --format xlsx --severity critical,high
  vulntrack export --format csv --s3-bucket security-reports --s3-prefix weekly`,
		RunE: runExport,
	}
	exportFilter.bind(cmd.Flags())
	cmd.Flags().StringVar(&flagFormat, "format", "csv", "csv | xlsx | json")
	cmd.Flags().StringVarP(&flagOutDir, "output-dir", "o", "", "directory for the export file (default export_dir or .)")
	cmd.Flags().StringVar(&flagS3Bucket, "s3-bucket", "", "also upload the file to this bucket")
	cmd.Flags().StringVar(&flagS3Prefix, "s3-prefix", "", "object key prefix for --s3-bucket")
	cmd.Flags().BoolVar(&flagAllowEmpty, "allow-empty", false, "write a file even when nothing matches")
	rootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	all, err := fetch(commandContext(cmd), cmd, s, store, exportFilter.serverFilter())
	if err != nil {
		return err
	}
	findings, err := exportFilter.apply(all, s.Source)
	if err != nil {
		return err
	}
	if len(findings) == 0 && !flagAllowEmpty {
		return fmt.Errorf("no findings to export")
	}

	dir := flagOutDir
	if dir == "" {
		dir = s.ExportDir
	}
	path, err := report.Export(dir, format, findings)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	abs, _ := filepath.Abs(path)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Exported %d findings to %s\n", len(findings), abs)

	bucket := flagS3Bucket
	if bucket == "" && s.S3.Bucket != nil {
		bucket = *s.S3.Bucket
	}
	if bucket == "" {
		return nil
	}
	return upload(cmd, s, bucket, path, format)
}

func upload(cmd *cobra.Command, s settings, bucket, path string, format report.Format) error {
	endpoint := pickString("", s.S3.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("s3 upload needs an endpoint (s3.endpoint or %s)", config.EnvS3Endpoint)
	}
	useSSL := s.S3.UseSSL != nil && *s.S3.UseSSL
	oc, err := objstore.New(endpoint, pickString("", s.S3.AccessKey), pickString("", s.S3.SecretKey), useSSL)
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	key := objstore.ObjectKey(flagS3Prefix, path, time.Now())
	if err := oc.UploadFile(commandContext(cmd), bucket, key, path, format.ContentType()); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded to %s\n", oc.URL(bucket, key))
	return nil
}
