package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compozy/productgen/engine/batch"
	"github.com/compozy/productgen/engine/generation"
	"github.com/compozy/productgen/engine/preprocess"
	"github.com/compozy/productgen/pkg/config"
)

func GenerateCmd() *cobra.Command {
	var (
		file  string
		url   string
		id    string
		hints []string
	)
	cmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Generate one product record from text, a file or a URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			item, err := singleItem(args, file, url, id, hints)
			if err != nil {
				return fatal(err)
			}
			opts := batch.OptionsFromConfig(&cfg.Batch)
			opts.Concurrency = 1
			p, err := newPipeline(ctx, cfg, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer p.Close()
			report, err := p.runner.Run(ctx, []batch.Item{item})
			if err != nil {
				return fatal(err)
			}
			return finishRun(ctx, &cfg.Batch, p, report, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the item text from a file")
	cmd.Flags().StringVar(&url, "url", "", "Fetch the item from an http(s) or file URL")
	cmd.Flags().StringVar(&id, "id", "1", "Item id used in logs and reports")
	cmd.Flags().StringSliceVar(&hints, "hint", nil, "Column hint as column=value (repeatable)")
	addPipelineFlags(cmd)
	return cmd
}

func singleItem(args []string, file, url, id string, hints []string) (batch.Item, error) {
	item := batch.Item{ID: id}
	sources := 0
	if len(args) == 1 {
		item.Source.Text = args[0]
		sources++
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return item, fmt.Errorf("failed to read input file: %w", err)
		}
		item.Source.Text = string(data)
		sources++
	}
	if url != "" {
		item.Source = preprocess.Source{URL: url}
		sources++
	}
	if sources != 1 {
		return item, fmt.Errorf("provide exactly one of text, --file or --url")
	}
	for _, h := range hints {
		column, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(column) == "" {
			return item, fmt.Errorf("invalid hint %q: expected column=value", h)
		}
		item.Hints = append(item.Hints, generation.Hint{Column: strings.TrimSpace(column), Value: strings.TrimSpace(value)})
	}
	return item, nil
}

// addPipelineFlags registers the flags shared by commands that generate.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "Generation provider (openai, openai-json, anthropic, ollama, googleai, fixture)")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().String("fixture", "", "Answer file for the fixture provider")
	cmd.Flags().String("sink", "", "Destination for accepted records (stdout, file, swell)")
	cmd.Flags().String("output-dir", "", "Output directory of the file sink")
	cmd.Flags().String("report", "", "Write the run report to this path (.json, .yaml)")
	cmd.Flags().String("metrics", "", "Write prometheus metrics to this textfile")
	cmd.Flags().Duration("item-timeout", 0, "Timeout for one item")
}
