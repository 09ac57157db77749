package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage configuration",
	Long: sym.AM + ` am - Manage metagnosis configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/metagnosis/am.toml)
3. User config (~/.metagnosis/am.toml)
4. Project config (./am.toml, searched up the directory tree)
5. --config file
6. Environment variables (METAGNOSIS_* prefix)

Examples:
  metagnosis am show                    # Show current configuration
  metagnosis am show --format json      # Show configuration as JSON
  metagnosis am get crawler.user_agent  # Get a specific value
  metagnosis am validate                # Validate current configuration
  metagnosis am init                    # Write defaults to ./am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged configuration from all sources. Credentials are masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g., database.path, publish.s3.bucket)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long:  "Write every default to path (default ./am.toml). An existing file is rotated to .back1..3 first.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files are loaded",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amWhereCmd)
}

// secretKeys are masked by am show and am get.
var secretKeys = map[string]bool{
	"api_key":    true,
	"access_key": true,
	"secret_key": true,
}

const masked = "********"

// maskSecrets replaces non-empty credential values in a nested settings map.
func maskSecrets(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]any:
			out[k] = maskSecrets(val)
		case string:
			if secretKeys[k] && val != "" {
				out[k] = masked
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

func formatSettings(settings map[string]any, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return data, nil
	case "toml":
		return am.MarshalTOML(settings)
	default:
		return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmShow(cmd *cobra.Command, args []string) error {
	v, err := am.GetViper()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	data, err := formatSettings(maskSecrets(v.AllSettings()), configFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value, err := am.Get(key)
	if err != nil {
		return err
	}
	last := key[strings.LastIndex(key, ".")+1:]
	if s, ok := value.(string); ok && secretKeys[last] && s != "" {
		value = masked
	}
	if m, ok := value.(map[string]any); ok {
		value = maskSecrets(m)
		return printJSON(cmd, value)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.ConfigFileName
	if len(args) == 1 {
		path = args[0]
	}
	if err := am.WriteDefault(path); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Wrote default configuration to %s", path)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	rows := [][]string{}
	for i, path := range am.ConfigPaths() {
		state := "missing"
		if _, err := os.Stat(path); err == nil {
			state = "loaded"
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), path, state})
	}
	return renderTable(cmd, []string{"#", "File", "State"}, rows, "No configuration files searched")
}
