package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
)

func newTable(w io.Writer, columns ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	head := make([]string, len(columns))
	for i, c := range columns {
		head[i] = titleStyle.Render(c)
	}
	fmt.Fprintln(tw, strings.Join(head, "\t")+"\t")
	return tw
}

func newSessionsCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"chats"},
		Short:   "List the chats of the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				ws, err := rt.current(cmd.Context())
				if err != nil {
					return err
				}
				printSessions(cmd.OutOrStdout(), ws.Chats.ListSessions(), currentID(ws.Chats.CurrentSession()))
				return nil
			})
		},
	}
}

func currentID(s *domain.ChatSession, err error) uuid.UUID {
	if err != nil || s == nil {
		return uuid.Nil
	}
	return s.ID
}

func printSessions(w io.Writer, sessions []*domain.ChatSession, current uuid.UUID) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, headerStyle.Render("📋 No chats yet"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📋 %d chat(s)", len(sessions))))

	tw := newTable(w, "ID", "Title", "Messages", "Updated")
	for _, s := range sessions {
		marker := "  "
		if s.ID == current {
			marker = "* "
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			marker+idStyle.Render(s.ID.String()),
			truncate(s.Title, 50),
			countStyle.Render(strconv.Itoa(len(s.Messages))),
			dateStyle.Render(formatDate(s.UpdatedAt)),
		)
	}
	tw.Flush()
}

func newDocumentsCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List the documents of the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				ws, err := rt.current(cmd.Context())
				if err != nil {
					return err
				}
				printDocuments(cmd.OutOrStdout(), ws.Documents.ListDocuments())
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the current content of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				ws, err := rt.current(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := ws.Documents.GetDocument(id)
				if err != nil {
					return err
				}
				versions, _ := ws.Documents.Versions(id)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(doc.Title),
					mutedStyle.Render(fmt.Sprintf("(%s, %d version(s))", doc.Kind, len(versions))))
				fmt.Fprintln(out, doc.ContentString())
				return nil
			})
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func printDocuments(w io.Writer, docs []*domain.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, headerStyle.Render("📄 No documents yet"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📄 %d document(s)", len(docs))))

	tw := newTable(w, "ID", "Title", "Kind", "Updated")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(d.ID.String()),
			truncate(d.Title, 50),
			string(d.Kind),
			dateStyle.Render(formatDate(d.UpdatedAt)),
		)
	}
	tw.Flush()
}

func newModelsCmd(cfg func() *config.Config) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the chat models of the catalog, or the provider's models with --remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if remote {
				client := llm.NewClient(c.LLMAPIKey, c.LLMBaseURL)
				models, err := client.ListModels(cmd.Context())
				if err != nil {
					return fmt.Errorf("list provider models: %w", err)
				}
				printRemoteModels(cmd.OutOrStdout(), models)
				return nil
			}
			catalog, err := llm.LoadCatalog(c.CatalogPath)
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), catalog.ChatModels(), c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Query the provider instead of the local catalog")
	return cmd
}

func printCatalog(w io.Writer, models []llm.ModelSpec, cfg *config.Config) {
	tw := newTable(w, "ID", "Name", "Reasoning", "Tools", "")
	for _, m := range models {
		var flags []string
		if m.ID == cfg.ChatModel {
			flags = append(flags, "default")
		}
		if !cfg.IsModelAvailable(m.ID) {
			flags = append(flags, "unavailable")
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t\n",
			idStyle.Render(m.ID),
			m.Name,
			m.Reasoning,
			strings.Join(m.Tools, ","),
			mutedStyle.Render(strings.Join(flags, " ")),
		)
	}
	tw.Flush()
}

func printRemoteModels(w io.Writer, models []llm.ProviderModel) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("🤖 %d model(s)", len(models))))
	tw := newTable(w, "ID", "Context", "Prompt $/1M", "Completion $/1M")
	for _, m := range models {
		price := func(p decimal.Decimal) string {
			if m.IsFree() {
				return successStyle.Render("free")
			}
			return p.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n",
			idStyle.Render(m.ID), m.ContextLength, price(m.PromptPrice), price(m.CompletionPrice))
	}
	tw.Flush()
}
