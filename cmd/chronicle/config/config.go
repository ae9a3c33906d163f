// Package configcmder provides the config command for managing persistent
// chronicle configuration stored in the .chronicle/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chronicle configuration.

Configuration is stored as config.toml in the .chronicle/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  generation.provider, generation.model, generation.target,
  evaluation.provider, evaluation.model, evaluation.target,
  budget.context_ceiling, budget.token_model,
  planner.max_steps, distill.phase_one_limit, distill.phase_two_limit,
  turn.offline_max_retries, turn.offline_backoff_ms,
  events.enabled, events.topic

The [[spaces]] array of embedding spaces is edited in the file directly.

Use subcommands to get, set, or list configuration values:
  chronicle config set <key> <value>    Set a configuration value
  chronicle config get <key>            Get a configuration value
  chronicle config list                 List all configuration values

Examples:
  chronicle config set storage.provider sqlite
  chronicle config set generation.model llama3.2
  chronicle config get budget.context_ceiling
  chronicle config list`

const configShortDesc string = "Manage persistent chronicle configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
