package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/compozy/productgen/engine/normalize"
	"github.com/compozy/productgen/engine/schema"
	"github.com/compozy/productgen/pkg/config"
)

func ValidateCmd() *cobra.Command {
	var skipSchema bool
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate and normalize a candidate product record",
		Long: `Check a JSON object against the compiled schema and the product rules.
The normalized record is printed on success; violations are listed and the
command exits with code 2 when the record is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			candidate, err := readCandidate(cmd.InOrStdin(), args[0])
			if err != nil {
				return fatal(err)
			}
			var compiled *schema.Compiled
			if !skipSchema {
				compiled, _, err = compileSchema(ctx, &cfg.Schema)
				if err != nil {
					return fatal(err)
				}
			}
			stderr := cmd.ErrOrStderr()
			st := newStyles(stderr)
			result, err := normalize.New(compiled).Normalize(ctx, candidate)
			if ve, ok := normalize.AsValidationError(err); ok {
				fmt.Fprintln(stderr, st.failed.Render(fmt.Sprintf("Rejected with %d violations", len(ve.Violations))))
				for _, v := range ve.Violations {
					fmt.Fprintf(stderr, "  %s\n", v)
				}
				return &ExitError{Code: ExitPartial}
			}
			if err != nil {
				return fatal(err)
			}
			for _, c := range result.Corrections {
				fmt.Fprintf(stderr, "corrected %s\n", c)
			}
			for _, w := range result.Warnings {
				fmt.Fprintln(stderr, st.warn.Render("warning: "+w))
			}
			data, err := json.Marshal(result.Record)
			if err != nil {
				return fatal(fmt.Errorf("failed to encode record: %w", err))
			}
			_, err = cmd.OutOrStdout().Write(pretty.Pretty(data))
			return err
		},
	}
	cmd.Flags().BoolVar(&skipSchema, "no-schema", false, "Check the product rules only")
	return cmd
}

func readCandidate(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate: %w", err)
	}
	var candidate map[string]any
	if err := json.Unmarshal(data, &candidate); err != nil {
		return nil, fmt.Errorf("candidate is not a JSON object: %w", err)
	}
	return candidate, nil
}
