package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/buildinfo"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/exitcode"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptdepot",
		Short: "Keep a local cache of manifest-published scripts in sync",
		Long: `Scriptdepot obtains and keeps up to date a set of executable scripts
published as entries in one or more JSON manifests, cached locally under a
content-addressed SHA-256 integrity guarantee.

Examples:
   scriptdepot list              # Show every script in the merged manifest view
   scriptdepot get disk-cleanup  # Download and verify one script
   scriptdepot check             # Count pending updates for cached scripts
   scriptdepot update            # Re-download every cached script that changed`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("scriptdepot {{.Version}}\n")

	// Grouped help by command group (Sync → Source → Support)
	cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		reg := ops.GetRegistry()
		cmd.Println(cmd.Long)
		cmd.Println()
		cmd.Println("Sync Commands:")
		for _, c := range reg.GetCommandsByGroup(ops.GroupSync) {
			cmd.Printf("  %-12s %s\n", c.Name, c.Description)
		}
		cmd.Println()
		cmd.Println("Source Commands:")
		for _, c := range reg.GetCommandsByGroup(ops.GroupSource) {
			cmd.Printf("  %-12s %s\n", c.Name, c.Description)
		}
		cmd.Println()
		cmd.Println("Support Commands:")
		for _, c := range reg.GetCommandsByGroup(ops.GroupSupport) {
			cmd.Printf("  %-12s %s\n", c.Name, c.Description)
		}
		cmd.Println()
		cmd.Println("Flags:")
		cmd.Println(cmd.Flags().FlagUsages())
	})

	return cmd
}

func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(listCmd)
	cmd.AddCommand(getCmd)
	cmd.AddCommand(updateCmd)
	cmd.AddCommand(checkCmd)
	cmd.AddCommand(sourcesCmd)
	cmd.AddCommand(cacheCmd)
	cmd.AddCommand(infoCmd)
	cmd.AddCommand(homeCmd)
	cmd.AddCommand(versionCmd)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		logger.Error("Command execution failed", logger.Err(err))
		os.Exit(exitcode.GeneralError)
	}
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "repository",
	}
	// Append to the depot log when a home is available; logging stays
	// best-effort either way.
	if store, err := configstore.Open(); err == nil {
		config.FilePath = store.LogFilePath()
	}
	_ = logger.Initialize(config)
}
