package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/spf13/cobra"
)

func HealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the embedding provider and the vector store",
		Long: `Validate that the active provider can embed with a dimension the vector store
accepts and that the vector store answers. Blank embedding defaults are repaired
on the way. With --strict a non-healthy result exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runHealth,
	}

	cmd.Flags().Bool("strict", false, "Exit with an error unless the system is healthy")
	addOutputFlag(cmd)

	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	sys := rt.healthService().CheckSystem(ctx)

	if wantsJSON(cmd) {
		if err := printJSON(cmd.OutOrStdout(), sys); err != nil {
			return err
		}
	} else {
		writeSystemHealth(cmd.OutOrStdout(), sys)
	}

	if strict, _ := cmd.Flags().GetBool("strict"); strict && sys.Status != service.HealthHealthy {
		return fmt.Errorf("system is %s", sys.Status)
	}
	return nil
}

func writeSystemHealth(w io.Writer, sys service.SystemHealth) {
	fmt.Fprintf(w, "System: %s\n\n", sys.Status)

	e := sys.Embedding
	fmt.Fprintf(w, "Embedding: %s\n", e.Status)
	if e.Provider != "" {
		fmt.Fprintf(w, "  provider:  %s (%s)\n", e.Provider, e.Kind)
	}
	if e.Model != "" {
		fmt.Fprintf(w, "  model:     %s, %d dimensions\n", e.Model, e.Dimension)
	}
	if e.LatencyMS > 0 {
		fmt.Fprintf(w, "  latency:   %dms\n", e.LatencyMS)
	}
	if e.Degraded {
		fmt.Fprintln(w, "  degraded:  yes (hashing fallback)")
	}
	if e.Repaired {
		fmt.Fprintln(w, "  repaired:  blank embedding defaults were filled in")
	}
	if e.Message != "" {
		fmt.Fprintf(w, "  message:   %s\n", e.Message)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  hint:      %s\n", e.Hint)
	}

	v := sys.VectorStore
	fmt.Fprintf(w, "\nVector store: %s\n", v.Status)
	fmt.Fprintf(w, "  dimension: %d\n", v.Dimension)
	if v.Message != "" {
		fmt.Fprintf(w, "  message:   %s\n", v.Message)
	}
}
