package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/agent"
	"github.com/fleetchat/fleetd/internal/config"
	"github.com/fleetchat/fleetd/internal/sse"
)

// runAsk sends one message and prints the response.
func runAsk(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("ask", "[flags] <message>", stderr)
	session := fs.StringP("session", "s", "", "continue an existing session")
	text := fs.Bool("text", false, "answer in plain text without A2UI")
	showEvents := fs.Bool("events", false, "print pipeline events to stderr")
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	message := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(message) == "" {
		fs.Usage()
		return errors.New("ask: message required")
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if *showEvents {
		a.watchEvents(stderr)
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}

	req := agent.SendRequest{
		SessionID: *session,
		Content:   message,
		Provider:  *provider,
		Model:     *model,
	}
	if *text {
		useUI := false
		req.UseUI = &useUI
	}

	if g.output == outputSSE {
		w := sse.NewWriter(stdout)
		if err := ag.StreamMessage(ctx, req, w.Send); err != nil {
			return err
		}
		return w.Done()
	}

	resp, err := ag.SendMessage(ctx, req)
	if err != nil {
		return err
	}
	return printResponse(stdout, stderr, g.output, resp)
}

// runChat reads one message per line from stdin and keeps the session
// across turns. "/new" starts a fresh session; "/quit" or EOF ends.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("chat", "[flags]", stderr)
	session := fs.StringP("session", "s", "", "resume an existing session")
	text := fs.Bool("text", false, "answer in plain text without A2UI")
	showEvents := fs.Bool("events", false, "print pipeline events to stderr")
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if *showEvents {
		a.watchEvents(stderr)
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}

	var useUI *bool
	if *text {
		v := false
		useUI = &v
	}
	id := *session
	interactive := g.output == outputText

	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(stdout, "> ")
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			id = ""
			if interactive {
				fmt.Fprintln(stdout, "(new session)")
			}
			continue
		}

		resp, err := ag.SendMessage(ctx, agent.SendRequest{
			SessionID: id,
			Content:   line,
			UseUI:     useUI,
			Provider:  *provider,
			Model:     *model,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("message failed", "error", err)
			continue
		}
		id = resp.SessionID
		if err := printResponse(stdout, stderr, g.output, resp); err != nil {
			return err
		}
	}
	return sc.Err()
}

// printResponse writes resp as JSON, or as the reply text followed by
// the A2UI messages with a status line on stderr.
func printResponse(stdout, stderr io.Writer, format string, resp *agent.Response) error {
	if format == outputJSON {
		return writeJSON(stdout, resp)
	}
	if resp.Content != "" {
		fmt.Fprintln(stdout, resp.Content)
	}
	if len(resp.A2UIMessages) > 0 {
		if err := writeJSON(stdout, resp.A2UIMessages); err != nil {
			return err
		}
	}
	status := fmt.Sprintf("session %s, %d attempt(s), %s", resp.SessionID, resp.Attempts, resp.ConversationState)
	if resp.Model != "" {
		status += ", " + resp.Provider + "/" + resp.Model
	}
	if resp.Updates != "" {
		status += ": " + resp.Updates
	}
	fmt.Fprintf(stderr, "[%s]\n", status)
	return nil
}

// runSessions lists, shows or deletes stored sessions.
func runSessions(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("sessions", "list|show <id>|delete <id>", stderr)
	user := fs.StringP("user", "u", "", "list only this user's sessions")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"list"}
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ag, err := a.newAgent()
	if err != nil {
		return err
	}

	switch rest[0] {
	case "list":
		ids, err := ag.ListSessions(ctx, *user)
		if err != nil {
			return err
		}
		sessions := make([]*agent.Session, 0, len(ids))
		for _, id := range ids {
			s, err := ag.GetSession(ctx, id)
			if err != nil {
				return err
			}
			sessions = append(sessions, s)
		}
		if g.output == outputJSON {
			return writeJSON(stdout, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(stdout, "no sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(stdout, "%s  %-14s %3d msgs  %-18s %s\n",
				s.ID, s.Context.UserID, len(s.Messages), s.Context.ConversationState,
				s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil

	case "show":
		if len(rest) < 2 {
			return errors.New("sessions show: session id required")
		}
		s, err := ag.GetSession(ctx, rest[1])
		if err != nil {
			return err
		}
		if g.output == outputJSON {
			return writeJSON(stdout, s)
		}
		fmt.Fprintf(stdout, "session %s (user %s, app %s)\n", s.ID, s.Context.UserID, s.Context.AppName)
		if len(s.ToolsUsed) > 0 {
			fmt.Fprintf(stdout, "tools: %s\n", strings.Join(s.ToolsUsed, ", "))
		}
		for _, m := range s.Messages {
			fmt.Fprintf(stdout, "\n[%s] %s\n", m.Timestamp.Local().Format("15:04:05"), m.Role)
			if m.Content != "" {
				fmt.Fprintln(stdout, m.Content)
			}
			if m.Metadata != nil && len(m.Metadata.UIComponents) > 0 {
				fmt.Fprintf(stdout, "(a2ui: %s, %s)\n", strings.Join(m.Metadata.UIComponents, ", "), m.Metadata.ValidationStatus)
			}
		}
		return nil

	case "delete":
		if len(rest) < 2 {
			return errors.New("sessions delete: session id required")
		}
		if err := ag.DeleteSession(ctx, rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", rest[1])
		return nil

	default:
		return fmt.Errorf("sessions: unknown action %q", rest[0])
	}
}

// renderResult is the JSON form of runRender's output.
type renderResult struct {
	Text     string          `json:"text,omitempty"`
	Method   string          `json:"method,omitempty"`
	Repaired bool            `json:"repaired,omitempty"`
	Skipped  []string        `json:"skipped,omitempty"`
	Messages []a2ui.Message  `json:"messages"`
	Surfaces []*a2ui.Surface `json:"surfaces"`
}

// runRender runs model output or a bare A2UI payload through the same
// extract, parse, validate and apply steps the agent uses, without a
// model.
func runRender(stdin io.Reader, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("render", "[file|-]", stderr)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	in := stdin
	if path := fs.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ex := a2ui.Extract(string(data))
	payload := ex.JSON
	if !ex.Found {
		payload, ex.Text = ex.Text, ""
	}

	res, err := a2ui.Parse(payload)
	if err != nil {
		return err
	}
	a2ui.Normalize(res.Messages)
	if err := a2ui.Validate(res.Messages); err != nil {
		return err
	}

	store := a2ui.NewSurfaceStore(config.NewLogger(stderr, slog.LevelWarn, "text"))
	if err := store.ApplyAll(res.Messages); err != nil {
		return err
	}

	out := renderResult{
		Text:     strings.TrimSpace(ex.Text),
		Method:   ex.Method,
		Repaired: res.Repaired,
		Messages: res.Messages,
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, fmt.Sprintf("message %d: %v", s.Index+1, s.Err))
	}
	for _, id := range store.List() {
		s, err := store.Get(id)
		if err != nil {
			return err
		}
		out.Surfaces = append(out.Surfaces, s)
	}

	if g.output == outputJSON {
		return writeJSON(stdout, out)
	}
	printRender(stdout, out)
	return nil
}

func printRender(w io.Writer, r renderResult) {
	if r.Text != "" {
		fmt.Fprintln(w, r.Text)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d message(s) valid", len(r.Messages))
	if r.Repaired {
		fmt.Fprint(w, " (repaired)")
	}
	fmt.Fprintln(w)
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped %s\n", s)
	}
	for _, s := range r.Surfaces {
		fmt.Fprintf(w, "\nsurface %s root=%s\n", s.ID, s.Root)
		for _, c := range s.SortedComponents() {
			line := fmt.Sprintf("  %-20s %s", c.ID, c.Component.Type())
			if kids := c.Component.ChildIDs(); len(kids) > 0 {
				line += " -> " + strings.Join(kids, ", ")
			}
			fmt.Fprintln(w, line)
		}
		if len(s.DataModel) > 0 {
			fmt.Fprintf(w, "  data: %d key(s)\n", len(s.DataModel))
		}
	}
}
