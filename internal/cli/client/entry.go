package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Entry represents a knowledge entry from the API.
type Entry struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	Category       string  `json:"category,omitempty"`
	SourceURL      string  `json:"source_url,omitempty"`
	IndexingStatus string  `json:"indexing_status"`
	IndexingError  string  `json:"indexing_error,omitempty"`
	ChunkCount     int     `json:"chunk_count"`
	LastIndexedAt  *string `json:"last_indexed_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// EntryRequest is the body of create and update calls.
type EntryRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Category  string `json:"category,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// EntryList is one page of entries.
type EntryList struct {
	Items   []Entry `json:"items"`
	Cursor  string  `json:"cursor,omitempty"`
	HasMore bool    `json:"has_more"`
}

// EntryCmd creates the entry command.
func EntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entry",
		Short:   "Manage knowledge entries",
		Aliases: []string{"entries"},
	}

	cmd.AddCommand(entryAddCmd())
	cmd.AddCommand(entryUpdateCmd())
	cmd.AddCommand(entryGetCmd())
	cmd.AddCommand(entryListCmd())
	cmd.AddCommand(entryDeleteCmd())
	cmd.AddCommand(entryReindexCmd())

	return cmd
}

type entryFlags struct {
	title     string
	file      string
	category  string
	sourceURL string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Entry title")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the body from a file (- for stdin)")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Entry category")
	cmd.Flags().StringVar(&f.sourceURL, "source-url", "", "URL of the original document")
}

func (f *entryFlags) request(stdin io.Reader) (EntryRequest, error) {
	req := EntryRequest{Title: f.title, Category: f.category, SourceURL: f.sourceURL}
	if f.file == "" {
		return req, fmt.Errorf("--file is required")
	}

	var data []byte
	var err error
	if f.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(f.file)
	}
	if err != nil {
		return req, fmt.Errorf("failed to read body: %w", err)
	}
	req.Body = string(data)
	return req, nil
}

func entryAddCmd() *cobra.Command {
	var flags entryFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an entry and queue it for indexing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Post("/entries", req)
			if err != nil {
				return fmt.Errorf("failed to create entry: %w", err)
			}
			return printEntryResult(cmd, resp, "Entry created")
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func entryUpdateCmd() *cobra.Command {
	var flags entryFlags

	cmd := &cobra.Command{
		Use:   "update <entry-id>",
		Short: "Replace an entry and queue it for reindexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Put("/entries/"+url.PathEscape(args[0]), req)
			if err != nil {
				return fmt.Errorf("failed to update entry: %w", err)
			}
			return printEntryResult(cmd, resp, "Entry updated")
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func entryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <entry-id>",
		Short:   "Show an entry and its indexing state",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Get("/entries/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("failed to get entry: %w", err)
			}
			if outputJSON {
				return writeRawJSON(cmd.OutOrStdout(), resp.Data)
			}

			var entry Entry
			if err := json.Unmarshal(resp.Data, &entry); err != nil {
				return fmt.Errorf("failed to parse entry: %w", err)
			}
			writeEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
}

func entryListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			resp, err := api.Get("/entries?" + q.Encode())
			if err != nil {
				return fmt.Errorf("failed to list entries: %w", err)
			}
			if outputJSON {
				return writeRawJSON(cmd.OutOrStdout(), resp.Data)
			}

			var list EntryList
			if err := json.Unmarshal(resp.Data, &list); err != nil {
				return fmt.Errorf("failed to parse entries: %w", err)
			}
			return writeEntryTable(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func entryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete an entry and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/entries/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to delete entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry deleted: %s\n", args[0])
			return nil
		},
	}
}

func entryReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <entry-id>",
		Short: "Queue an entry for reindexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Post("/entries/"+url.PathEscape(args[0])+"/reindex", nil)
			if err != nil {
				return fmt.Errorf("failed to queue reindex: %w", err)
			}
			return printEntryResult(cmd, resp, "Reindex queued")
		},
	}
}

func printEntryResult(cmd *cobra.Command, resp *APIResponse, headline string) error {
	if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
		return writeRawJSON(cmd.OutOrStdout(), resp.Data)
	}
	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", headline, entry.ID, entry.IndexingStatus)
	return nil
}

func writeEntry(w io.Writer, e Entry) {
	fmt.Fprintf(w, "Title: %s\n", e.Title)
	fmt.Fprintf(w, "ID: %s\n", e.ID)
	if e.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", e.Category)
	}
	if e.SourceURL != "" {
		fmt.Fprintf(w, "Source: %s\n", e.SourceURL)
	}
	fmt.Fprintf(w, "Indexing: %s, %d chunk(s)\n", e.IndexingStatus, e.ChunkCount)
	if e.IndexingError != "" {
		fmt.Fprintf(w, "Indexing error: %s\n", e.IndexingError)
	}
	if e.LastIndexedAt != nil {
		fmt.Fprintf(w, "Last indexed: %s\n", *e.LastIndexedAt)
	}
	fmt.Fprintf(w, "Created: %s\n", e.CreatedAt)
	fmt.Fprintf(w, "Updated: %s\n", e.UpdatedAt)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Content ---")
	fmt.Fprintln(w, e.Body)
}

func writeEntryTable(w io.Writer, list EntryList) error {
	if len(list.Items) == 0 {
		_, err := fmt.Fprintln(w, "No entries found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tCHUNKS")
	for _, e := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.ID, e.Title, e.IndexingStatus, e.ChunkCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.HasMore && list.Cursor != "" {
		fmt.Fprintf(w, "\n%s\nMore entries available. Use --cursor %s\n", strings.Repeat("-", 40), list.Cursor)
	}
	return nil
}
