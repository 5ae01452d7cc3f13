package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cloo-solutions/groundwork/internal/crypto"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func ProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage AI provider configurations",
		Long:  "List, add and activate the provider configurations used for embeddings and chat. Exactly one is active at a time.",
	}

	cmd.AddCommand(providerListCmd())
	cmd.AddCommand(providerAddCmd())
	cmd.AddCommand(providerActivateCmd())

	return cmd
}

type providerView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`
	ChatModel          string `json:"chat_model"`
	ChatEndpoint       string `json:"chat_endpoint,omitempty"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	EmbeddingEndpoint  string `json:"embedding_endpoint,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
	SupportsEmbedding  bool   `json:"supports_embedding"`
	HasCredential      bool   `json:"has_credential"`
	IsActive           bool   `json:"is_active"`
}

func toProviderView(p *domain.ProviderConfig) providerView {
	return providerView{
		ID:                 p.ID,
		Name:               p.Name,
		Kind:               string(p.Kind),
		ChatModel:          p.ChatModel,
		ChatEndpoint:       p.ChatEndpoint,
		EmbeddingModel:     p.EmbeddingModel,
		EmbeddingEndpoint:  p.EmbeddingEndpoint,
		EmbeddingDimension: p.EmbeddingDimension,
		SupportsEmbedding:  p.SupportsEmbedding,
		HasCredential:      p.EncryptedCredential != "",
		IsActive:           p.IsActive,
	}
}

func providerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List provider configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			configs, err := rt.providers.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list providers: %w", err)
			}

			views := make([]providerView, len(configs))
			for i, p := range configs {
				views[i] = toProviderView(p)
			}
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), views)
			}
			return writeProviderTable(cmd.OutOrStdout(), views)
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func writeProviderTable(w io.Writer, views []providerView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No providers configured. Add one with: groundworkd provider add <name> --kind <kind>")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tNAME\tKIND\tCHAT MODEL\tEMBEDDING MODEL\tDIM")
	for _, v := range views {
		active := ""
		if v.IsActive {
			active = "*"
		}
		embedding := v.EmbeddingModel
		if !v.SupportsEmbedding {
			embedding = "(disabled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", active, v.Name, v.Kind, v.ChatModel, embedding, v.EmbeddingDimension)
	}
	return tw.Flush()
}

type providerAddOptions struct {
	kind               string
	chatModel          string
	chatEndpoint       string
	credentialEnv      string
	embeddingModel     string
	embeddingEndpoint  string
	embeddingDimension int
	noEmbedding        bool
	contextWindow      int
	maxOutputTokens    int
	activate           bool
}

func providerAddCmd() *cobra.Command {
	var opts providerAddOptions

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a provider configuration",
		Long: `Add a provider configuration. Blank models and dimensions are filled from the
built-in defaults for the kind. The credential is read from the environment
variable named by --credential-env and sealed with GROUNDWORK_CREDENTIAL_KEY.

Kinds: ` + kindList(),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			credential := ""
			if opts.credentialEnv != "" {
				credential = os.Getenv(opts.credentialEnv)
				if credential == "" {
					return fmt.Errorf("environment variable %s is empty", opts.credentialEnv)
				}
			}

			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := buildProviderConfig(args[0], opts, credential, rt.sealer, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := rt.providers.Create(ctx, p); err != nil {
				return fmt.Errorf("failed to add provider: %w", err)
			}
			if opts.activate {
				if err := rt.providers.Activate(ctx, p.ID); err != nil {
					return fmt.Errorf("failed to activate provider: %w", err)
				}
				p.IsActive = true
			}

			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), toProviderView(p))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provider added: %s (%s)\n", p.Name, p.ID)
			if !p.IsActive {
				fmt.Fprintf(cmd.OutOrStdout(), "Activate it with: groundworkd provider activate %s\n", p.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "Backend kind ("+kindList()+")")
	cmd.Flags().StringVar(&opts.chatModel, "chat-model", "", "Chat model name")
	cmd.Flags().StringVar(&opts.chatEndpoint, "chat-endpoint", "", "Chat endpoint base URL")
	cmd.Flags().StringVar(&opts.credentialEnv, "credential-env", "", "Environment variable holding the API key")
	cmd.Flags().StringVar(&opts.embeddingModel, "embedding-model", "", "Embedding model name")
	cmd.Flags().StringVar(&opts.embeddingEndpoint, "embedding-endpoint", "", "Embedding endpoint base URL (defaults to the chat endpoint)")
	cmd.Flags().IntVar(&opts.embeddingDimension, "embedding-dimension", 0, "Embedding vector size")
	cmd.Flags().BoolVar(&opts.noEmbedding, "no-embedding", false, "Disable embeddings for this provider")
	cmd.Flags().IntVar(&opts.contextWindow, "context-window", 0, "Model context window in tokens")
	cmd.Flags().IntVar(&opts.maxOutputTokens, "max-output-tokens", 0, "Maximum tokens per answer")
	cmd.Flags().BoolVar(&opts.activate, "activate", false, "Make this the active provider")
	_ = cmd.MarkFlagRequired("kind")
	addOutputFlag(cmd)

	return cmd
}

// buildProviderConfig turns flags into a validated configuration with the
// credential sealed.
func buildProviderConfig(name string, opts providerAddOptions, credential string, sealer *crypto.Sealer, now time.Time) (*domain.ProviderConfig, error) {
	kind := domain.ProviderKind(strings.ToLower(strings.TrimSpace(opts.kind)))
	if !domain.IsValidProviderKind(kind) {
		return nil, domain.Wrap(domain.ErrInvalidProviderKind, fmt.Errorf("%q, expected one of %s", opts.kind, kindList()))
	}
	defaults, _ := llm.Defaults(kind)

	p := &domain.ProviderConfig{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(name),
		Kind:               kind,
		ChatModel:          opts.chatModel,
		ChatEndpoint:       opts.chatEndpoint,
		EmbeddingModel:     opts.embeddingModel,
		EmbeddingEndpoint:  opts.embeddingEndpoint,
		EmbeddingDimension: opts.embeddingDimension,
		SupportsEmbedding:  defaults.NativeEmbedding && !opts.noEmbedding,
		Capabilities: domain.ProviderCapabilities{
			ContextWindow:   opts.contextWindow,
			MaxOutputTokens: opts.maxOutputTokens,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ChatModel == "" {
		p.ChatModel = defaults.ChatModel
	}
	if p.SupportsEmbedding {
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaults.EmbeddingModel
		}
		if p.EmbeddingDimension == 0 {
			p.EmbeddingDimension, _ = llm.ModelDimension(p.EmbeddingModel)
		}
	}

	if err := domain.ValidateProviderConfig(p); err != nil {
		return nil, domain.Wrap(domain.ErrMissingRequiredField, err)
	}

	if credential != "" {
		if sealer == nil {
			return nil, fmt.Errorf("GROUNDWORK_CREDENTIAL_KEY must be set to store a credential")
		}
		sealed, err := sealer.Seal(credential)
		if err != nil {
			return nil, fmt.Errorf("failed to seal credential: %w", err)
		}
		p.EncryptedCredential = sealed
	}
	return p, nil
}

func providerActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <name>",
		Short: "Make a provider configuration the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.providers.GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to find provider %q: %w", args[0], err)
			}
			if err := rt.providers.Activate(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to activate provider: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active provider: %s (%s)\n", p.Name, p.Kind)

			h := rt.healthService().CheckEmbedding(ctx)
			if h.Status != service.HealthConnected {
				fmt.Fprintf(cmd.OutOrStdout(), "Warning: embedding check reports %s: %s\n", h.Status, h.Message)
			}
			return nil
		},
	}
}

func kindList() string {
	names := make([]string, len(domain.ProviderKinds))
	for i, k := range domain.ProviderKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
