// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jeranaias/grok-cli/internal/chat"
	"github.com/jeranaias/grok-cli/internal/config"
	ctxwin "github.com/jeranaias/grok-cli/internal/context"
	"github.com/jeranaias/grok-cli/internal/files"
	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/storage"
	"github.com/jeranaias/grok-cli/internal/tokens"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// historyFileName holds REPL input history in the data directory.
const historyFileName = "chat_history"

// replCommand is a slash command available in interactive chat.
type replCommand struct {
	name    string
	aliases []string
	args    string
	summary string
	run     func(r *repl, ctx context.Context, arg string) error
}

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

var replCommands []replCommand

func init() {
	replCommands = []replCommand{
		{name: "help", aliases: []string{"h", "?"}, summary: "Show this help", run: (*repl).help},
		{name: "clear", aliases: []string{"c"}, summary: "Clear conversation history and context", run: (*repl).clearHistory},
		{name: "model", aliases: []string{"m"}, args: "[name]", summary: "Show or switch the model", run: (*repl).switchModel},
		{name: "models", summary: "List available models", run: (*repl).models},
		{name: "stream", summary: "Toggle streaming replies", run: (*repl).toggleStream},
		{name: "add", args: "<path>...", summary: "Attach files or directories as context", run: (*repl).add},
		{name: "context", aliases: []string{"ctx"}, summary: "Show attached context", run: (*repl).showContext},
		{name: "retry", aliases: []string{"r"}, summary: "Resend the last unanswered message", run: (*repl).retry},
		{name: "history", summary: "Show the conversation so far", run: (*repl).history},
		{name: "usage", summary: "Show token usage for this session", run: (*repl).usage},
		{name: "save", summary: "Save this session", run: (*repl).save},
		{name: "load", args: "<id>", summary: "Load a saved session", run: (*repl).load},
		{name: "sessions", summary: "List saved sessions", run: (*repl).sessions},
		{name: "quit", aliases: []string{"q", "exit"}, summary: "Exit chat", run: func(*repl, context.Context, string) error { return errQuit }},
	}
}

func findReplCommand(name string) *replCommand {
	name = strings.ToLower(name)
	for i := range replCommands {
		c := &replCommands[i]
		if c.name == name {
			return c
		}
		for _, alias := range c.aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

// completeSlash completes slash command names at the prompt.
func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range replCommands {
		if strings.HasPrefix("/"+c.name, line) {
			out = append(out, "/"+c.name)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

// repl is an interactive chat session.
type repl struct {
	app     *App
	cfg     *config.Config
	client  chat.Transport
	session *chat.Session
	opts    model.ChatOptions
	proc    *files.Processor
	md      *markdown
	in      lineReader
	out     io.Writer
	store   *storage.Store
}

func (a *App) newREPL(cfg *config.Config, client chat.Transport, opts model.ChatOptions, in lineReader) *repl {
	r := &repl{
		app:    a,
		cfg:    cfg,
		client: client,
		opts:   opts,
		proc:   files.NewProcessor(0),
		md:     a.markdown(),
		in:     in,
		out:    a.stdout,
	}
	r.session = r.newSession()
	return r
}

func (r *repl) newSession(opts ...chat.SessionOption) *chat.Session {
	base := []chat.SessionOption{
		chat.WithWindow(ctxwin.NewWindow(r.cfg.Chat.ContextBudget)),
		chat.WithLogger(r.app.logger()),
	}
	return chat.NewSession(r.client, append(base, opts...)...)
}

// runInteractive starts the REPL, optionally resuming a saved session and
// attaching files first.
func (a *App) runInteractive(ctx context.Context, opts model.ChatOptions, attach []string, resume string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	var in lineReader
	if a.interactive {
		historyPath := ""
		if dir, err := cfg.DataDir(); err == nil && os.MkdirAll(dir, 0700) == nil {
			historyPath = filepath.Join(dir, historyFileName)
		}
		in = newLinerReader(historyPath, completeSlash)
	} else {
		in = newScanReader(a.stdin)
	}

	r := a.newREPL(cfg, client, opts, in)
	defer r.close()

	if resume != "" {
		if err := r.load(ctx, resume); err != nil {
			return err
		}
	}
	if len(attach) > 0 {
		if err := r.add(ctx, strings.Join(attach, " ")); err != nil {
			return err
		}
	}

	if a.interactive {
		r.banner()
	}
	return r.loop(ctx)
}

func (r *repl) close() {
	if r.in != nil {
		_ = r.in.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (r *repl) banner() {
	fmt.Fprintln(r.out, TitleStyle.Render("Grok CLI"))
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Model: %s. Type /help for commands, exit to quit.", r.opts.Model)))
	fmt.Fprintln(r.out, DimStyle.Render("Ctrl+C cancels the current reply, Ctrl+D exits."))
	fmt.Fprintln(r.out)
}

// loop reads and handles input until EOF or a quit command.
func (r *repl) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := r.in.Prompt("You: ")
		if isAbort(err) {
			fmt.Fprintln(r.out, DimStyle.Render("Type exit or press Ctrl+D to quit."))
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		err = r.handle(ctx, line)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if err != nil {
			r.report(ctx, err)
		}
	}
}

// handle dispatches one line of input.
func (r *repl) handle(ctx context.Context, line string) error {
	switch strings.ToLower(line) {
	case "exit", "quit":
		return errQuit
	case "clear":
		return r.clearHistory(ctx, "")
	}

	if strings.HasPrefix(line, "/") {
		name, arg, _ := strings.Cut(line[1:], " ")
		cmd := findReplCommand(name)
		if cmd == nil {
			return usageErrorf("unknown command /%s, type /help for commands", name)
		}
		return cmd.run(r, ctx, strings.TrimSpace(arg))
	}

	return r.send(ctx, line)
}

// report prints a failed turn or command without ending the REPL.
func (r *repl) report(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		fmt.Fprintln(r.out, WarningStyle.Render("Request cancelled."))
	} else {
		r.app.printError(err)
	}
	if r.session.Pending() && retryable(err) {
		fmt.Fprintln(r.out, DimStyle.Render("Type /retry to resend your last message."))
	}
}

// retryable reports whether resending could succeed. Client errors such as
// a rejected key or bad request fail the same way every time.
func retryable(err error) bool {
	if xe, ok := xai.AsError(err); ok {
		return xe.Retryable()
	}
	return true
}

// =============================================================================
// TURNS
// =============================================================================

func (r *repl) send(ctx context.Context, text string) error {
	return r.turn(ctx, func(ctx context.Context) (*chat.TurnStream, error) {
		return r.session.SendStream(ctx, text, r.opts)
	}, func(ctx context.Context) (*model.Response, error) {
		return r.session.Send(ctx, text, r.opts)
	})
}

func (r *repl) retry(ctx context.Context, _ string) error {
	return r.turn(ctx, func(ctx context.Context) (*chat.TurnStream, error) {
		return r.session.ResubmitStream(ctx, r.opts)
	}, func(ctx context.Context) (*model.Response, error) {
		return r.session.Resubmit(ctx, r.opts)
	})
}

// turn runs one request. Ctrl+C cancels only this request.
func (r *repl) turn(ctx context.Context,
	stream func(context.Context) (*chat.TurnStream, error),
	send func(context.Context) (*model.Response, error),
) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if r.opts.Stream {
		ts, err := stream(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(r.out, AssistantStyle.Render("Grok: "))
		if _, err := r.app.printFragments(ts.Fragments()); err != nil {
			return err
		}
		fmt.Fprintln(r.out)
		return nil
	}

	var resp *model.Response
	err := withSpinner(r.app.spinnerEnabled(), r.app.stderr, "Thinking...", func() error {
		var err error
		resp, err = send(ctx)
		return err
	})
	if err != nil {
		return err
	}

	reply := resp.Content()
	if r.md != nil {
		fmt.Fprintln(r.out, AssistantStyle.Render("Grok:"))
		fmt.Fprintln(r.out, r.md.Render(reply))
	} else {
		fmt.Fprintln(r.out, AssistantStyle.Render("Grok: ")+reply)
	}
	fmt.Fprintln(r.out)
	return nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func (r *repl) help(context.Context, string) error {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	tw := tabwriter.NewWriter(r.out, 2, 0, 2, ' ', 0)
	for _, c := range replCommands {
		name := "/" + c.name
		if c.args != "" {
			name += " " + c.args
		}
		fmt.Fprintf(tw, "  %s\t%s\n", CommandStyle.Render(name), c.summary)
	}
	fmt.Fprintf(tw, "  %s\t%s\n", CommandStyle.Render("exit"), "Exit chat")
	fmt.Fprintf(tw, "  %s\t%s\n", CommandStyle.Render("clear"), "Clear conversation history")
	return tw.Flush()
}

func (r *repl) clearHistory(context.Context, string) error {
	r.session.Clear()
	fmt.Fprintln(r.out, SuccessStyle.Render("Chat history cleared."))
	return nil
}

func (r *repl) switchModel(_ context.Context, arg string) error {
	if arg == "" {
		fmt.Fprintln(r.out, field("Model:", r.opts.Model))
		return nil
	}
	r.opts.Model = arg
	fmt.Fprintln(r.out, SuccessStyle.Render("Switched to "+arg))
	return nil
}

func (r *repl) models(ctx context.Context, _ string) error {
	descs, err := r.client.Models(ctx)
	if err != nil {
		return err
	}
	printModels(r.out, descs, r.opts.Model)
	return nil
}

func (r *repl) toggleStream(context.Context, string) error {
	r.opts.Stream = !r.opts.Stream
	state := "off"
	if r.opts.Stream {
		state = "on"
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Streaming "+state))
	return nil
}

func (r *repl) add(_ context.Context, arg string) error {
	paths := strings.Fields(arg)
	if len(paths) == 0 {
		return usageErrorf("usage: /add <path>...")
	}
	win := r.session.Window()
	n, err := attachPaths(r.proc, win, paths)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(r.out, WarningStyle.Render("No relevant files found."))
		return nil
	}
	fmt.Fprintln(r.out, SuccessStyle.Render(fmt.Sprintf("Added %d files.", n)), DimStyle.Render(win.Summary()))
	return nil
}

func (r *repl) showContext(context.Context, string) error {
	win := r.session.Window()
	fmt.Fprintln(r.out, win.Summary())
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Budget: %s, %s remaining",
		tokens.Format(win.Budget()), tokens.Format(win.Remaining()))))
	for _, e := range win.Entries() {
		label := e.Metadata.FilePath
		if e.Kind != ctxwin.KindFile {
			label = model.Message{Content: e.Content}.Preview(50)
		}
		fmt.Fprintf(r.out, "  %-8s %s %s\n", e.Kind, label, DimStyle.Render(tokens.Format(e.Metadata.EstimatedTokens)))
	}
	return nil
}

func (r *repl) history(context.Context, string) error {
	msgs := r.session.History()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No messages yet."))
		return nil
	}
	for _, m := range msgs {
		name := UserPromptStyle.Render(m.Role.DisplayName() + ":")
		if m.Role == model.RoleAssistant {
			name = AssistantStyle.Render(m.Role.DisplayName() + ":")
		}
		fmt.Fprintf(r.out, "%s %s\n", name, m.Content)
	}
	return nil
}

func (r *repl) usage(context.Context, string) error {
	u := r.session.Usage()
	fmt.Fprintln(r.out, field("Messages:", formatCount(r.session.Len())))
	fmt.Fprintln(r.out, field("Tokens used:", formatUsage(u)))
	fmt.Fprintln(r.out, field("Context:", tokens.Format(r.session.Window().TokenCount())))
	return nil
}

func (r *repl) openStore() (*storage.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := r.app.openStore()
	if err != nil {
		return nil, err
	}
	r.store = store
	return store, nil
}

func (r *repl) save(ctx context.Context, _ string) error {
	if r.session.Len() == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("Nothing to save yet."))
		return nil
	}
	store, err := r.openStore()
	if err != nil {
		return err
	}
	t := &storage.Transcript{
		ID:        r.session.ID(),
		Model:     r.opts.Model,
		CreatedAt: r.session.CreatedAt(),
		Messages:  r.session.History(),
	}
	if err := store.Save(ctx, t); err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Saved session "+storage.ShortID(t.ID)))
	return nil
}

func (r *repl) load(ctx context.Context, arg string) error {
	if arg == "" {
		return usageErrorf("usage: /load <id>")
	}
	store, err := r.openStore()
	if err != nil {
		return err
	}
	t, err := store.Load(ctx, arg)
	if err != nil {
		return err
	}

	// Attached files outlive the conversation they were added in.
	r.session = r.newSession(
		chat.WithID(t.ID),
		chat.WithCreatedAt(t.CreatedAt),
		chat.WithHistory(t.Messages),
		chat.WithWindow(r.session.Window()),
	)
	if t.Model != "" {
		r.opts.Model = t.Model
	}
	fmt.Fprintln(r.out, SuccessStyle.Render(fmt.Sprintf("Loaded %q (%d messages)", t.Summary, len(t.Messages))))
	return nil
}

func (r *repl) sessions(ctx context.Context, _ string) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	metas, err := store.List(ctx, 20)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, storage.FormatList(metas))
	return nil
}

// printModels writes a model table, marking current.
func printModels(w io.Writer, descs []model.Descriptor, current string) {
	if len(descs) == 0 {
		fmt.Fprintln(w, "No models available.")
		return
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "  MODEL\tCONTEXT\tDESCRIPTION")
	for _, d := range descs {
		mark := " "
		if d.ID == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\n", mark, d.ID, formatCount(d.ContextLength), d.Description)
	}
	tw.Flush()
}
