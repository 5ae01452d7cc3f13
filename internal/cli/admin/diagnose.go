package admin

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/spf13/cobra"
)

func DiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run single pipeline steps for troubleshooting",
		Long:  "Run the chunker, the embedder or a vector query on their own and print what they produce.",
	}

	cmd.AddCommand(diagnoseChunkCmd())
	cmd.AddCommand(diagnoseEmbedCmd())
	cmd.AddCommand(diagnoseQueryCmd())

	return cmd
}

type chunkView struct {
	Index     int    `json:"index"`
	CharCount int    `json:"char_count"`
	Preview   string `json:"preview"`
}

func diagnoseChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Split text into chunks",
		Long:  "Split a file, or standard input when no file is given, with the indexing chunker. Needs no database.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}
			text, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			size, _ := cmd.Flags().GetInt("size")
			overlap, _ := cmd.Flags().GetInt("overlap")
			chunks, err := service.ChunkText(string(text), size, overlap)
			if err != nil {
				return err
			}

			views := make([]chunkView, len(chunks))
			for i, c := range chunks {
				views[i] = chunkView{Index: i, CharCount: utf8.RuneCountInString(c), Preview: preview(c, 60)}
			}
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), views)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d chunk(s), size %d, overlap %d\n", len(views), size, overlap)
			for _, v := range views {
				fmt.Fprintf(w, "[%d] %4d chars  %s\n", v.Index, v.CharCount, v.Preview)
			}
			return nil
		},
	}

	cmd.Flags().Int("size", 1024, "Maximum chunk size in characters")
	cmd.Flags().Int("overlap", 200, "Characters shared by consecutive chunks")
	addOutputFlag(cmd)

	return cmd
}

type embedView struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Expected  int       `json:"expected_dimension"`
	Degraded  bool      `json:"degraded_embedding"`
	Norm      float64   `json:"norm"`
	Head      []float32 `json:"head"`
}

func diagnoseEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed <text>",
		Short: "Embed text with the active provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			set, err := rt.resolver.Active(ctx)
			if err != nil {
				return err
			}

			embedCtx, cancel := context.WithTimeout(ctx, rt.cfg.EmbedTimeout)
			defer cancel()
			vector, err := set.Embedder.Embed(embedCtx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("embed failed: %w", err)
			}

			info := set.Embedder.Info()
			view := embedView{
				Provider:  set.Config.Name,
				Model:     info.Model,
				Dimension: len(vector),
				Expected:  rt.store.Dimension(),
				Degraded:  info.Degraded,
				Norm:      norm(vector),
				Head:      vector[:min(8, len(vector))],
			}
			if wantsJSON(cmd) {
				if err := printJSON(cmd.OutOrStdout(), view); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Provider:  %s\nModel:     %s\nDimension: %d (vector store expects %d)\nNorm:      %.4f\nHead:      %v\n",
					view.Provider, view.Model, view.Dimension, view.Expected, view.Norm, view.Head)
				if view.Degraded {
					fmt.Fprintln(w, "Degraded:  yes, hashing fallback vectors are not semantic")
				}
			}
			return llm.CheckDimension([][]float32{vector}, rt.store.Dimension())
		},
	}
	addOutputFlag(cmd)
	return cmd
}

type queryMatchView struct {
	Score     float64 `json:"score"`
	Kept      bool    `json:"kept"`
	EntryID   string  `json:"entry_id"`
	ChunkID   string  `json:"chunk_id"`
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url,omitempty"`
}

func diagnoseQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Show what retrieval finds for a question",
		Long:  "Embed a question, query the vector store and show every candidate with whether the score and host filters keep it. No chat call is made.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			settings, err := rt.settings.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			if topK, _ := cmd.Flags().GetInt("top-k"); topK > 0 {
				settings.TopK = topK
			}

			set, err := rt.resolver.Active(ctx)
			if err != nil {
				return err
			}

			embedCtx, cancel := context.WithTimeout(ctx, rt.cfg.EmbedTimeout)
			defer cancel()
			vector, err := set.Embedder.Embed(embedCtx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("embed failed: %w", err)
			}

			searchCtx, cancelSearch := context.WithTimeout(ctx, rt.cfg.VectorTimeout)
			defer cancelSearch()
			matches, err := rt.store.Query(searchCtx, vector, settings.TopK, vectorstore.Filter{})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			views := queryViews(matches, service.FilterMatches(matches, settings.MinScore, settings.AllowedSourceHosts))
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), views)
			}
			writeQueryViews(cmd.OutOrStdout(), views, settings)
			return nil
		},
	}

	cmd.Flags().Int("top-k", 0, "Override the configured number of candidates")
	addOutputFlag(cmd)

	return cmd
}

func queryViews(all, kept []vectorstore.Match) []queryMatchView {
	keep := make(map[string]bool, len(kept))
	for _, m := range kept {
		keep[m.ID] = true
	}
	views := make([]queryMatchView, len(all))
	for i, m := range all {
		views[i] = queryMatchView{
			Score:     m.Score,
			Kept:      keep[m.ID],
			EntryID:   m.Metadata.EntryID,
			ChunkID:   m.Metadata.ChunkID,
			Title:     m.Metadata.Title,
			SourceURL: m.Metadata.SourceURL,
		}
	}
	return views
}

func writeQueryViews(w io.Writer, views []queryMatchView, settings domain.RAGSettings) {
	fmt.Fprintf(w, "%d candidate(s), min score %.2f", len(views), settings.MinScore)
	if len(settings.AllowedSourceHosts) > 0 {
		fmt.Fprintf(w, ", hosts %s", strings.Join(settings.AllowedSourceHosts, ","))
	}
	fmt.Fprintln(w)
	for _, v := range views {
		mark := "drop"
		if v.Kept {
			mark = "keep"
		}
		fmt.Fprintf(w, "%.4f  %s  %s  (entry %s)\n", v.Score, mark, v.Title, v.EntryID)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
