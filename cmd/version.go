package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/buildinfo"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	if err := ops.RegisterCommand("version", ops.GroupSupport, versionCmd, "Show version information"); err != nil {
		panic(fmt.Sprintf("Failed to register version command: %v", err))
	}

	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	if asJSON {
		payload := map[string]string{
			"version":    buildinfo.BinaryVersion,
			"module":     buildinfo.ModuleVersion(),
			"go_version": runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		}
		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Printf("scriptdepot %s (%s, %s/%s)\n", buildinfo.BinaryVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
