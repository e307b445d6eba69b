package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compozy/productgen/engine/batch"
	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

func ImportCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "import <file|pattern>...",
		Short: "Generate and submit records for every item of CSV, JSON or URL list files",
		Long: `Read batch input files and process every item. Arguments may be
doublestar patterns such as 'inputs/**/*.csv'. Files are read by extension:
.csv rows, the first array of a .json document, otherwise one URL per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			log := logger.FromContext(ctx)
			input, err := batch.ReadFiles(args...)
			if err != nil {
				return fatal(err)
			}
			stderr := cmd.ErrOrStderr()
			if len(input.Items) == 0 {
				for _, inv := range input.Invalid {
					fmt.Fprintf(stderr, "line %d skipped: %s (%s)\n", inv.Line, inv.Value, inv.Reason)
				}
				return &ExitError{Code: ExitPartial}
			}
			ok, err := confirm(
				fmt.Sprintf("Process %d items?", len(input.Items)),
				fmt.Sprintf("Provider %s (%s), sink %s", cfg.LLM.Provider, cfg.LLM.Model, cfg.Sink.Kind),
				yes,
			)
			if err != nil {
				return fatal(err)
			}
			if !ok {
				fmt.Fprintln(stderr, "Canceled")
				return nil
			}
			opts := batch.OptionsFromConfig(&cfg.Batch)
			askCleanup := !opts.KeepArtifacts && !yes && interactive()
			if askCleanup {
				opts.KeepArtifacts = true
			}
			p, err := newPipeline(ctx, cfg, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer p.Close()
			report, err := p.runner.Run(ctx, input.Items)
			if err != nil {
				return fatal(err)
			}
			report.Invalid = input.Invalid
			if askCleanup && report.ArtifactsDir != "" {
				remove, err := confirm("Delete interim data?", report.ArtifactsDir, false)
				if err != nil {
					log.Warn("Confirmation failed", "error", err)
				}
				if remove {
					if err := os.RemoveAll(report.ArtifactsDir); err != nil {
						log.Warn("Failed to remove artifacts", "dir", report.ArtifactsDir, "error", err)
					}
					report.ArtifactsDir = ""
				}
			}
			return finishRun(ctx, &cfg.Batch, p, report, stderr)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().Int("concurrency", 0, "Number of items processed in parallel")
	cmd.Flags().Bool("keep-artifacts", false, "Keep interim files of the run")
	addPipelineFlags(cmd)
	return cmd
}
