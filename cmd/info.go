package cmd

import (
	"fmt"

	"github.com/aymerick/raymond"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <script-id>",
	Short: "Show details for a script",
	Long: `Show the canonical metadata for a script: its category, file name,
download URL, checksum, and which source it came from.

A Handlebars template can be supplied with --template to render the entry
in a custom shape, for example:

  scriptdepot info setup-env --template "{{id}} {{checksum}}"`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	if err := ops.RegisterCommand("info", ops.GroupSupport, infoCmd, "Show details for a script"); err != nil {
		panic(fmt.Sprintf("Failed to register info command: %v", err))
	}

	infoCmd.Flags().String("template", "", "Handlebars template rendered with the entry's fields")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	entry, ok := engine.FindByID(args[0])
	if !ok {
		return &repository.NotFoundError{ID: args[0]}
	}

	ctx := map[string]interface{}{
		"id":           entry.ID,
		"name":         entry.Name,
		"description":  entry.Description,
		"version":      entry.Version,
		"category":     string(entry.Category),
		"file_name":    entry.FileName,
		"download_url": entry.DownloadURL,
		"checksum":     entry.Checksum,
		"source":       entry.SourceName,
		"cached":       engine.IsCached(entry),
	}

	if tpl, _ := cmd.Flags().GetString("template"); tpl != "" {
		out, err := raymond.Render(tpl, ctx)
		if err != nil {
			return fmt.Errorf("failed to render template: %w", err)
		}
		cmd.Println(out)
		return nil
	}

	cmd.Printf("ID:          %s\n", entry.ID)
	if entry.Name != "" {
		cmd.Printf("Name:        %s\n", entry.Name)
	}
	if entry.Description != "" {
		cmd.Printf("Description: %s\n", entry.Description)
	}
	if entry.Version != "" {
		cmd.Printf("Version:     %s\n", entry.Version)
	}
	cmd.Printf("Category:    %s\n", entry.Category)
	cmd.Printf("File:        %s\n", entry.FileName)
	cmd.Printf("URL:         %s\n", entry.DownloadURL)
	if entry.Checksum != "" {
		cmd.Printf("Checksum:    %s\n", entry.Checksum)
	} else {
		cmd.Printf("Checksum:    (none, verification skipped)\n")
	}
	cmd.Printf("Source:      %s\n", entry.SourceName)
	cmd.Printf("Cached:      %v\n", engine.IsCached(entry))
	return nil
}
