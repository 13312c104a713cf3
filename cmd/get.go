package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/scriptdepot/internal/ops"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/repository"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id>...",
	Short: "Download and verify one or more scripts into the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGet,
}

func init() {
	if err := ops.RegisterCommand("get", ops.GroupSync, getCmd, "Download and verify scripts into the cache"); err != nil {
		panic(fmt.Sprintf("Failed to register get command: %v", err))
	}

	getCmd.Flags().Int("concurrency", 4, "Maximum concurrent downloads")
}

// runGet downloads the requested ids. The engine itself is synchronous;
// running downloads for different ids in parallel is the caller's job, and
// the ids here are de-duplicated so no two goroutines race on one cache path.
func runGet(cmd *cobra.Command, args []string) error {
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	cfg, err := configstore.Open()
	if err != nil {
		return err
	}
	engine := repository.New(cfg)

	seen := make(map[string]bool)
	var ids []string
	for _, id := range args {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var mu sync.Mutex
	failures := 0

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res := engine.Download(id)

			mu.Lock()
			defer mu.Unlock()
			if res.Success {
				cmd.Printf("ok    %s -> %s\n", id, res.Path)
			} else {
				failures++
				cmd.Printf("fail  %s: %v\n", id, res.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if failures > 0 {
		return fmt.Errorf("%d of %d download(s) failed", failures, len(ids))
	}
	return nil
}
