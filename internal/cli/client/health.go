package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SystemHealth mirrors the server's combined health report.
type SystemHealth struct {
	Status    string `json:"status"`
	Embedding struct {
		Status    string `json:"status"`
		Provider  string `json:"provider,omitempty"`
		Kind      string `json:"kind,omitempty"`
		Model     string `json:"model,omitempty"`
		Dimension int    `json:"dimension,omitempty"`
		Degraded  bool   `json:"degraded_embedding"`
		Repaired  bool   `json:"repaired,omitempty"`
		LatencyMS int64  `json:"latency_ms,omitempty"`
		Message   string `json:"message,omitempty"`
		Hint      string `json:"hint,omitempty"`
	} `json:"embedding"`
	VectorStore struct {
		Status    string `json:"status"`
		Dimension int    `json:"dimension"`
		LatencyMS int64  `json:"latency_ms,omitempty"`
		Message   string `json:"message,omitempty"`
	} `json:"vector_store"`
}

// HealthCmd creates the health command.
func HealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the server's embedding provider and vector store",
		Long:  "Calls the server's system health check. Exits non-zero unless the system is healthy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runHealth(cmd.OutOrStdout(), api, outputJSON)
		},
	}
}

func runHealth(w io.Writer, api *APIClient, outputJSON bool) error {
	var data json.RawMessage
	resp, err := api.Get("/health/system")
	var apiErr *APIError
	switch {
	case err == nil:
		data = resp.Data
	case errors.As(err, &apiErr) && len(apiErr.Data) > 0:
		data = apiErr.Data
	default:
		return fmt.Errorf("health check failed: %w", err)
	}

	var sys SystemHealth
	if err := json.Unmarshal(data, &sys); err != nil {
		return fmt.Errorf("failed to parse health report: %w", err)
	}

	if outputJSON {
		if err := writeJSON(w, sys); err != nil {
			return err
		}
	} else {
		writeHealth(w, sys)
	}

	if sys.Status != "healthy" {
		return fmt.Errorf("system is %s", sys.Status)
	}
	return nil
}

func writeHealth(w io.Writer, sys SystemHealth) {
	fmt.Fprintf(w, "System: %s\n", sys.Status)

	e := sys.Embedding
	fmt.Fprintf(w, "Embedding: %s", e.Status)
	if e.Provider != "" {
		fmt.Fprintf(w, " (%s, %s, %d dimensions)", e.Provider, e.Model, e.Dimension)
	}
	fmt.Fprintln(w)
	if e.Message != "" {
		fmt.Fprintf(w, "  %s\n", e.Message)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  hint: %s\n", e.Hint)
	}

	v := sys.VectorStore
	fmt.Fprintf(w, "Vector store: %s (%d dimensions)\n", v.Status, v.Dimension)
	if v.Message != "" {
		fmt.Fprintf(w, "  %s\n", v.Message)
	}
}
