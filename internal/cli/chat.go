package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/orchestrator"
	"github.com/set-night/mindcanvas/internal/service"
)

type chatOptions struct {
	newChat bool
	chatID  string
	modelID string
}

func newChatCmd(cfg func() *config.Config) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and stream the answer",
		Long: `Send a message in the current chat and stream the answer to the terminal.
Ctrl+C stops the generation and keeps what was received.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
			defer stop()
			return withRuntime(ctx, cfg(), func(rt *runtime) error {
				ws, err := rt.current(ctx)
				if err != nil {
					return err
				}
				sessionID, err := pickSession(ws, opts)
				if err != nil {
					return err
				}
				res := runChat(ctx, rt.orchestrator, ws, sessionID, strings.Join(args, " "), opts.modelID, cmd.OutOrStdout())
				if res.Failure != nil {
					return fmt.Errorf("generation failed: %s", res.Failure.Category)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.newChat, "new", false, "Start a new chat")
	cmd.Flags().StringVar(&opts.chatID, "chat", "", "Continue the chat with this id")
	cmd.Flags().StringVarP(&opts.modelID, "model", "m", "", "Model id, defaults to DEFAULT_CHAT_MODEL")
	return cmd
}

// pickSession resolves the target chat: an explicit id, a new chat, or the
// current one (created when there is none).
func pickSession(ws *service.Workspace, opts *chatOptions) (uuid.UUID, error) {
	switch {
	case opts.chatID != "":
		id, err := uuid.Parse(opts.chatID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid chat id %q", opts.chatID)
		}
		if err := ws.Chats.SetCurrentSessionID(id); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	case opts.newChat:
		return ws.Chats.CreateSession().ID, nil
	}
	if s, err := ws.Chats.CurrentSession(); err == nil {
		return s.ID, nil
	}
	return ws.Chats.CreateSession().ID, nil
}

// runChat sends one message and renders the events as they arrive.
func runChat(ctx context.Context, o *orchestrator.Orchestrator, ws *service.Workspace, sessionID uuid.UUID, text, modelID string, out io.Writer) *orchestrator.Result {
	r := &chatRenderer{out: out}
	res := o.Send(ctx, orchestrator.StoresFor(ws), orchestrator.Request{
		SessionID: sessionID,
		Message:   domain.NewMessage(domain.RoleUser, text),
		ModelID:   modelID,
	}, orchestrator.SinkFunc(r.emit))
	r.finish(res)
	return res
}

type chatRenderer struct {
	out       io.Writer
	reasoning bool
	midLine   bool
}

func (r *chatRenderer) emit(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventReasoning:
		if !r.reasoning {
			fmt.Fprint(r.out, reasoningStyle.Render("thinking: "))
			r.reasoning = true
		}
		fmt.Fprint(r.out, reasoningStyle.Render(ev.Text))
		r.midLine = true
	case orchestrator.EventTextDelta:
		if r.reasoning {
			fmt.Fprintln(r.out)
			r.reasoning = false
		}
		fmt.Fprint(r.out, ev.Text)
		r.midLine = !strings.HasSuffix(ev.Text, "\n")
	case orchestrator.EventToolCall:
		r.line(mutedStyle.Render("→ " + ev.ToolName))
	case orchestrator.EventArtifactStart:
		r.line(mutedStyle.Render(fmt.Sprintf("📄 %s (%s)", ev.Title, ev.Kind)))
	case orchestrator.EventArtifactFinish:
		if ev.DocumentID != nil {
			r.line(mutedStyle.Render("✓ saved as " + ev.DocumentID.String()))
		}
	}
}

func (r *chatRenderer) line(s string) {
	if r.midLine {
		fmt.Fprintln(r.out)
	}
	fmt.Fprintln(r.out, s)
	r.midLine = false
}

func (r *chatRenderer) finish(res *orchestrator.Result) {
	switch {
	case res.Failure != nil:
		r.line(errorStyle.Render(res.Failure.Format()))
	case res.Canceled:
		r.line(mutedStyle.Render("⏹ stopped"))
	case r.midLine:
		fmt.Fprintln(r.out)
	}
}
