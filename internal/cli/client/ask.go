package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

// AskRequest represents the ask API request.
type AskRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Source is a cited chunk.
type Source struct {
	EntryID string  `json:"entry_id"`
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// AnswerMetadata describes how an answer was produced.
type AnswerMetadata struct {
	ItemsUsed         int    `json:"items_used"`
	Candidates        int    `json:"candidates"`
	Mode              string `json:"mode"`
	NoData            bool   `json:"no_data"`
	DegradedEmbedding bool   `json:"degraded_embedding"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Timings           struct {
		EmbedMS  int64 `json:"embed_ms"`
		SearchMS int64 `json:"search_ms"`
		ChatMS   int64 `json:"chat_ms"`
		TotalMS  int64 `json:"total_ms"`
	} `json:"timings"`
}

// Answer represents the ask API response.
type Answer struct {
	Answer   string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

type streamChunk struct {
	Content string `json:"content"`
}

type streamError struct {
	Error string `json:"error"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		mode   string
		userID string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the knowledge base",
		Long: `Asks a question. The answer is grounded in the retrieved knowledge entries and
lists the sources it used.

Modes: normal, strict, super_strict. When omitted the server's configured mode applies.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			req := AskRequest{Question: strings.Join(args, " "), Mode: mode, UserID: userID}
			if stream {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return runAskStream(ctx, cmd.OutOrStdout(), api, req, outputJSON)
			}
			return runAsk(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Answer mode (normal, strict, super_strict)")
	cmd.Flags().StringVar(&userID, "user-id", "", "Caller identifier recorded with the question")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "Print the answer as it is generated")

	return cmd
}

func runAsk(w io.Writer, api *APIClient, req AskRequest, outputJSON bool) error {
	resp, err := api.Post("/ask", req)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if outputJSON {
		return writeRawJSON(w, resp.Data)
	}

	var answer Answer
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	fmt.Fprintln(w, answer.Answer)
	writeSources(w, answer.Sources, answer.Metadata)
	return nil
}

func runAskStream(ctx context.Context, w io.Writer, api *APIClient, req AskRequest, outputJSON bool) error {
	var (
		text     strings.Builder
		answer   Answer
		finished bool
	)

	err := api.Stream(ctx, "/ask/stream", req, func(ev StreamEvent) error {
		switch ev.Event {
		case "chunk":
			var c streamChunk
			if err := json.Unmarshal(ev.Data, &c); err != nil {
				return fmt.Errorf("failed to parse chunk: %w", err)
			}
			text.WriteString(c.Content)
			if !outputJSON {
				fmt.Fprint(w, c.Content)
			}
		case "done":
			if err := json.Unmarshal(ev.Data, &answer); err != nil {
				return fmt.Errorf("failed to parse done event: %w", err)
			}
			finished = true
		case "error":
			var e streamError
			_ = json.Unmarshal(ev.Data, &e)
			if e.Error == "" {
				e.Error = "answer failed"
			}
			return errors.New(e.Error)
		}
		return nil
	})
	if err != nil {
		if !outputJSON && text.Len() > 0 {
			fmt.Fprintln(w)
		}
		return fmt.Errorf("ask failed: %w", err)
	}
	if !finished {
		return fmt.Errorf("ask failed: stream ended before the answer completed")
	}

	answer.Answer = text.String()
	if outputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintln(w)
	writeSources(w, answer.Sources, answer.Metadata)
	return nil
}

func writeSources(w io.Writer, sources []Source, meta AnswerMetadata) {
	if meta.DegradedEmbedding {
		fmt.Fprintln(w, "\nNote: retrieval used non-semantic fallback embeddings.")
	}
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range sources {
		fmt.Fprintf(w, "  [%d] %s (%.2f)\n", i+1, s.Title, s.Score)
		if s.URL != "" {
			fmt.Fprintf(w, "      %s\n", s.URL)
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func writeRawJSON(w io.Writer, data json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return writeJSON(w, v)
}
