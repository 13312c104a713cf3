package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
)

// homeCmd represents the home command
var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Show the depot home directory and its layout",
	RunE:  runHome,
}

func init() {
	if err := ops.RegisterCommand("home", ops.GroupSupport, homeCmd, "Show the depot home directory"); err != nil {
		panic(fmt.Sprintf("Failed to register home command: %v", err))
	}

	homeCmd.Flags().Bool("ensure", false, "Create the directory layout if missing")
}

func runHome(cmd *cobra.Command, _ []string) error {
	ensure, _ := cmd.Flags().GetBool("ensure")

	var cfg *configstore.Store
	var err error
	if ensure {
		cfg, err = configstore.Open()
	} else {
		var home string
		home, err = configstore.DepotHome()
		if err == nil {
			cfg = configstore.New(home)
		}
	}
	if err != nil {
		return err
	}

	cmd.Printf("Home:            %s\n", cfg.Home())
	cmd.Printf("Config:          %s\n", cfg.ConfigPath())
	cmd.Printf("Script cache:    %s\n", cfg.CacheDir())
	cmd.Printf("Manifest cache:  %s\n", cfg.ManifestCachePath())
	cmd.Printf("Custom manifests:%s\n", " "+cfg.CustomManifestDir())
	cmd.Printf("Git sources:     %s\n", cfg.GitSourceDir())
	cmd.Printf("Logs:            %s\n", cfg.LogFilePath())
	return nil
}
