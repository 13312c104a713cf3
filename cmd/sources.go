package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
	"github.com/fulmenhq/scriptdepot/pkg/safeio"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage manifest sources",
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured manifest sources",
	RunE:  runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <location>",
	Short: "Register a custom manifest source",
	Args:  cobra.ExactArgs(2),
	RunE:  runSourcesAdd,
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered custom manifest source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

func init() {
	if err := ops.RegisterCommand("sources", ops.GroupSource, sourcesCmd, "Manage manifest sources"); err != nil {
		panic(fmt.Sprintf("Failed to register sources command: %v", err))
	}

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)

	sourcesAddCmd.Flags().String("kind", "custom-remote", "Source kind (custom-remote|custom-local-file|custom-directory-scan|custom-git)")
	sourcesAddCmd.Flags().Bool("no-verify", false, "Disable checksum verification for this source")
	sourcesAddCmd.Flags().Bool("verify", false, "Force checksum verification for this source")
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	sources, err := engine.Sources()
	if err != nil {
		return err
	}
	for _, src := range sources {
		verify := "inherit"
		if src.VerifyChecksums != nil {
			verify = fmt.Sprintf("%v", *src.VerifyChecksums)
		}
		cmd.Printf("%-20s %-22s verify=%-8s %s\n", src.Name, src.Kind, verify, src.Location)
	}
	cmd.Printf("\n%d source(s)\n", len(sources))
	return nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	name, location := args[0], args[1]
	kind, _ := cmd.Flags().GetString("kind")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	forceVerify, _ := cmd.Flags().GetBool("verify")

	if noVerify && forceVerify {
		return fmt.Errorf("--verify and --no-verify are mutually exclusive")
	}

	switch repository.SourceKindFor(kind) {
	case manifest.SourceCustomLocalFile, manifest.SourceCustomDirectory:
		cleaned, err := safeio.CleanUserPath(location)
		if err != nil {
			return fmt.Errorf("invalid location %q: %w", location, err)
		}
		location = cleaned
	}

	cm := configstore.CustomManifest{Kind: kind, Location: location}
	if noVerify {
		v := false
		cm.VerifyChecksums = &v
	}
	if forceVerify {
		v := true
		cm.VerifyChecksums = &v
	}

	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	if err := cfg.RegisterCustomManifest(name, cm); err != nil {
		return err
	}
	cmd.Printf("registered source %q (%s)\n", name, kind)
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	removed, err := cfg.RemoveCustomManifest(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no source named %q is registered", args[0])
	}
	cmd.Printf("removed source %q\n", args[0])
	return nil
}
