package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-download every cached script whose manifest entry changed",
	RunE:  runUpdate,
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Count pending updates for cached scripts",
	RunE:  runCheck,
}

func init() {
	if err := ops.RegisterCommand("update", ops.GroupSync, updateCmd, "Re-download cached scripts whose manifest entry changed"); err != nil {
		panic(fmt.Sprintf("Failed to register update command: %v", err))
	}
	if err := ops.RegisterCommand("check", ops.GroupSync, checkCmd, "Count pending updates for cached scripts"); err != nil {
		panic(fmt.Sprintf("Failed to register check command: %v", err))
	}

	checkCmd.Flags().Bool("force", false, "Check even when the interval has not elapsed")
	checkCmd.Flags().Bool("list", false, "List the outdated entries instead of just counting")
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	updated, failed := engine.UpdateAll()
	cmd.Printf("updated %d script(s), %d failure(s)\n", updated, failed)
	if failed > 0 {
		return fmt.Errorf("%d update(s) failed", failed)
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	list, _ := cmd.Flags().GetBool("list")

	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)
	detector := repository.NewDetector(engine)

	if !force && !detector.IsCheckDue(time.Now()) {
		cmd.Println("update check not due yet (use --force to check anyway)")
		return nil
	}

	if list {
		outdated, err := detector.ListAvailableUpdates()
		if err != nil {
			return err
		}
		for _, e := range outdated {
			cmd.Printf("%s  (%s/%s)\n", e.ID, e.Category, e.FileName)
		}
		cmd.Printf("%d update(s) available\n", len(outdated))
		return nil
	}

	count, err := detector.CheckForUpdates()
	if err != nil {
		return err
	}
	cmd.Printf("%d update(s) available\n", count)
	return nil
}
