package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local script cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached scripts",
	RunE:  runCacheClear,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <script-id>",
	Short: "Remove a single cached script",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheRemove,
}

func init() {
	if err := ops.RegisterCommand("cache", ops.GroupSource, cacheCmd, "Manage the local script cache"); err != nil {
		panic(fmt.Sprintf("Failed to register cache command: %v", err))
	}

	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	removed := engine.Cache().Clear()
	cmd.Printf("removed %d cached script(s)\n", removed)
	return nil
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	if !engine.RemoveCached(args[0]) {
		return fmt.Errorf("script %q is not cached", args[0])
	}
	cmd.Printf("removed %s from cache\n", args[0])
	return nil
}
