package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compozy/productgen/pkg/config"
)

var (
	durationType  = reflect.TypeOf(time.Duration(0))
	sensitiveType = reflect.TypeOf(config.SensitiveString(""))
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection",
	}
	cmd.AddCommand(configShowCmd())
	return cmd
}

// configShowCmd shows the effective configuration with source information
func configShowCmd() *cobra.Command {
	var (
		format      string
		showSources bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values and their sources",
		Long: `Display the effective configuration. With --sources each value is
annotated with the source that provided it (cli, yaml, env or default).
Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return formatConfigOutput(cmd.OutOrStdout(), config.FromContext(ctx), sourcesFrom(ctx), format, showSources)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (json, yaml, table)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Show configuration sources")
	return cmd
}

func formatConfigOutput(
	w io.Writer,
	cfg *config.Config,
	sources map[string]config.SourceType,
	format string,
	showSources bool,
) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(configDocument(cfg, sources, showSources))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(configDocument(cfg, sources, showSources)); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		return outputTable(w, cfg, sources, showSources)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func configDocument(cfg *config.Config, sources map[string]config.SourceType, showSources bool) map[string]any {
	out := map[string]any{"config": configMap(reflect.ValueOf(cfg).Elem())}
	if showSources {
		out["sources"] = explicitSources(sources)
	}
	return out
}

// explicitSources drops the keys that kept their default value.
func explicitSources(sources map[string]config.SourceType) map[string]config.SourceType {
	out := make(map[string]config.SourceType, len(sources))
	for key, src := range sources {
		if src != config.SourceDefault {
			out[key] = src
		}
	}
	return out
}

// configMap converts a config struct to nested maps keyed by koanf tags.
func configMap(val reflect.Value) map[string]any {
	out := make(map[string]any)
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		out[tag] = displayValue(val.Field(i))
	}
	return out
}

func displayValue(v reflect.Value) any {
	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).String()
	case v.Type() == sensitiveType:
		return config.SensitiveString(v.String()).String()
	case v.Kind() == reflect.Struct:
		return configMap(v)
	default:
		return v.Interface()
	}
}

// flattenConfig converts the nested view to dotted keys.
func flattenConfig(prefix string, m map[string]any, result map[string]string) {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenConfig(full, nested, result)
			continue
		}
		result[full] = fmt.Sprintf("%v", value)
	}
}

func outputTable(w io.Writer, cfg *config.Config, sources map[string]config.SourceType, showSources bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	flat := make(map[string]string)
	flattenConfig("", configMap(reflect.ValueOf(cfg).Elem()), flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if showSources {
		fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(tw, "---\t-----\t------")
	} else {
		fmt.Fprintln(tw, "KEY\tVALUE")
		fmt.Fprintln(tw, "---\t-----")
	}
	for _, key := range keys {
		value := flat[key]
		if value == "" {
			value = "-"
		}
		if !showSources {
			fmt.Fprintf(tw, "%s\t%s\n", key, value)
			continue
		}
		source := sources[key]
		if source == "" {
			source = config.SourceDefault
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, strings.ReplaceAll(value, "\n", " "), source)
	}
	return tw.Flush()
}
