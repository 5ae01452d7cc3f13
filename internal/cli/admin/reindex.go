package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex <entry-id>",
		Short: "Rebuild the chunks and vectors of one entry",
		Long: `Run the indexing pipeline for one entry in this process and report the result.
With --queue the run is handed to the worker instead and the command returns immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: runReindex,
	}

	cmd.Flags().Bool("queue", false, "Enqueue the run for the worker instead of running it here")
	addOutputFlag(cmd)

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	entryID := args[0]

	rt, err := openRuntime(context.Background(), runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.IndexTimeout)
	defer cancel()

	if queue, _ := cmd.Flags().GetBool("queue"); queue {
		entry, err := rt.entryService().Reindex(ctx, entryID)
		if err != nil {
			return fmt.Errorf("failed to enqueue reindex: %w", err)
		}
		if wantsJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), map[string]string{"entry_id": entry.ID, "status": string(entry.IndexingStatus)})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued: %s (%s)\n", entry.Title, entry.ID)
		return nil
	}

	result, err := rt.indexingService().Index(ctx, entryID)
	if err != nil {
		return err
	}

	if wantsJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"entry_id":           result.EntryID,
			"chunk_count":        result.ChunkCount,
			"degraded_embedding": result.Degraded,
			"duration_ms":        result.Duration.Milliseconds(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d chunks in %s\n", result.EntryID, result.ChunkCount, result.Duration.Round(time.Millisecond))
	if result.Degraded {
		fmt.Fprintln(cmd.OutOrStdout(), "Warning: vectors come from the hashing fallback and are not semantic")
	}
	return nil
}
