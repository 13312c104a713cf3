package cmd

import (
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every script in the merged manifest view",
	RunE:  runList,
}

func init() {
	if err := ops.RegisterCommand("list", ops.GroupSync, listCmd, "Show every script in the merged manifest view"); err != nil {
		panic(fmt.Sprintf("Failed to register list command: %v", err))
	}

	listCmd.Flags().String("category", "", "Only show scripts in this category")
	listCmd.Flags().Bool("cached", false, "Only show scripts already in the local cache")
}

func runList(cmd *cobra.Command, _ []string) error {
	categoryFilter, _ := cmd.Flags().GetString("category")
	cachedOnly, _ := cmd.Flags().GetBool("cached")

	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	entries, err := engine.MergedEntries()
	if err != nil {
		return err
	}

	// Align columns on display width, not byte length.
	idWidth, catWidth := len("ID"), len("CATEGORY")
	for _, e := range entries {
		if w := runewidth.StringWidth(e.ID); w > idWidth {
			idWidth = w
		}
		if w := runewidth.StringWidth(string(e.Category)); w > catWidth {
			catWidth = w
		}
	}

	cmd.Printf("%s  %s  %s  %s\n",
		runewidth.FillRight("ID", idWidth),
		runewidth.FillRight("CATEGORY", catWidth),
		"CACHED",
		"DESCRIPTION")

	shown := 0
	for _, e := range entries {
		if categoryFilter != "" && string(e.Category) != categoryFilter {
			continue
		}
		cached := engine.IsCached(e)
		if cachedOnly && !cached {
			continue
		}
		mark := "-"
		if cached {
			mark = "yes"
		}
		cmd.Printf("%s  %s  %-6s  %s\n",
			runewidth.FillRight(e.ID, idWidth),
			runewidth.FillRight(string(e.Category), catWidth),
			mark,
			e.Description)
		shown++
	}

	cmd.Printf("\n%d script(s)\n", shown)
	return nil
}
