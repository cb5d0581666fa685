package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/postcard/internal/analytics"
	"github.com/conneroisu/postcard/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render every preview to static HTML",
	Long: `Render every preview function into <out>/<template>/<function>.html and
write an index.json describing the catalog. Failed renders are written as
<function>.errors.json next to the others.

With --s3-bucket the output directory is uploaded afterwards. Credentials come
from the standard AWS chain; --s3-endpoint targets S3-compatible stores.

Examples:
  postcard export
  postcard export --out dist/emails --strict
  postcard export --s3-bucket previews --s3-prefix pr-42`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var exportStrict bool

// s3ClientOverride replaces the AWS client; tests set it.
var s3ClientOverride export.S3Client

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("out", "o", "", "Output directory (default previews_html)")
	exportCmd.Flags().String("s3-bucket", "", "Upload the export to this bucket")
	exportCmd.Flags().String("s3-prefix", "", "Key prefix for uploaded objects")
	exportCmd.Flags().String("s3-region", "", "AWS region of the bucket")
	exportCmd.Flags().String("s3-endpoint", "", "Endpoint of an S3-compatible store")
	exportCmd.Flags().BoolVar(&exportStrict, "strict", false, "Fail when any preview does not render")

	viper.BindPFlag("export.out_dir", exportCmd.Flags().Lookup("out"))
	viper.BindPFlag("export.s3_bucket", exportCmd.Flags().Lookup("s3-bucket"))
	viper.BindPFlag("export.s3_prefix", exportCmd.Flags().Lookup("s3-prefix"))
	viper.BindPFlag("export.s3_region", exportCmd.Flags().Lookup("s3-region"))
	viper.BindPFlag("export.s3_endpoint", exportCmd.Flags().Lookup("s3-endpoint"))
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := commandContext(cmd)
	summary, err := export.New(a.service, a.logger).Export(ctx, a.cfg.Export.OutDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d previews to %s\n", summary.Rendered, summary.OutDir)
	for _, p := range summary.Failed {
		fmt.Fprintf(out, "  failed: %s/%s\n", p.Template, p.Function)
	}

	uploaded := 0
	if a.cfg.Export.S3Bucket != "" {
		opts := []export.UploaderOption{export.WithLogger(a.logger)}
		if s3ClientOverride != nil {
			opts = append(opts, export.WithS3Client(s3ClientOverride))
		}
		uploader, err := export.NewS3Uploader(ctx, export.S3Config{
			Bucket:   a.cfg.Export.S3Bucket,
			Prefix:   a.cfg.Export.S3Prefix,
			Region:   a.cfg.Export.S3Region,
			Endpoint: a.cfg.Export.S3Endpoint,
		}, opts...)
		if err != nil {
			return err
		}

		keys, err := uploader.UploadDir(ctx, summary.OutDir)
		if err != nil {
			return err
		}
		uploaded = len(keys)
		fmt.Fprintf(out, "Uploaded %d files to s3://%s/%s\n", uploaded, a.cfg.Export.S3Bucket, uploader.Key(""))
	}

	a.tracker.Capture(ctx, analytics.EventExport, map[string]any{
		"rendered": summary.Rendered,
		"failed":   len(summary.Failed),
		"uploaded": uploaded,
	})

	if exportStrict && len(summary.Failed) > 0 {
		return fmt.Errorf("%d preview(s) failed to render", len(summary.Failed))
	}
	return nil
}
