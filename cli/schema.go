package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/productgen/engine/schema"
	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

func SchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Schema compilation",
	}
	cmd.AddCommand(schemaCompileCmd())
	return cmd
}

func schemaCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the base schema and instructions into a self-contained artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			log := logger.FromContext(ctx)
			compiled, hit, err := compileSchema(ctx, &cfg.Schema)
			if err != nil {
				return fatal(err)
			}
			if cfg.Schema.CompiledPath != "" {
				if err := compiled.WriteFile(cfg.Schema.CompiledPath); err != nil {
					return fatal(fmt.Errorf("failed to write compiled schema: %w", err))
				}
			}
			for _, w := range schema.Lint(compiled.Root()) {
				log.Warn("Compiled schema", "warning", w)
			}
			stats := compiled.Stats()
			for _, w := range stats.Warnings {
				log.Warn("Compiled schema exceeds provider limits", "warning", w)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema:      %s\n", compiled.Name())
			fmt.Fprintf(out, "strict:      %t\n", compiled.Strict())
			fmt.Fprintf(out, "fingerprint: %s\n", compiled.Fingerprint())
			fmt.Fprintf(out, "properties:  %d\n", stats.TotalProperties)
			fmt.Fprintf(out, "depth:       %d\n", stats.MaxDepth)
			fmt.Fprintf(out, "cached:      %t\n", hit)
			if cfg.Schema.CompiledPath != "" {
				fmt.Fprintf(out, "written:     %s\n", cfg.Schema.CompiledPath)
			}
			return nil
		},
	}
	cmd.Flags().String("compiled", "", "Output path of the compiled schema")
	return cmd
}
