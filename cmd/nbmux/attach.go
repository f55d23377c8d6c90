package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/nbmux/core"
	"pkt.systems/nbmux/internal/appconfig"
	"pkt.systems/nbmux/internal/logx"
	"pkt.systems/nbmux/internal/panelconn"
	"pkt.systems/nbmux/internal/tabsync"
	"pkt.systems/nbmux/internal/threadstore"
	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

func newAttachCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "attach <notebook> [notebook...]",
		Short: "Attach chat panels to notebooks over the backend connection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			return runAttach(cmd.Context(), cfg, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	return cmd
}

func runAttach(ctx context.Context, cfg appconfig.Config, notebooks []string, stdin io.Reader, stdout io.Writer) error {
	logger := logx.Ctx(ctx)

	prefs, err := threadstore.NewStoreWithLogger(cfg.StateDir, logger)
	if err != nil {
		return err
	}
	seedPrefs(prefs, cfg)

	bus := tabsync.NewBus(logger)
	announce, err := tabsync.NewStore(cfg.StateDir, bus, logger)
	if err != nil {
		return err
	}
	defer func() { _ = announce.Close() }()

	sink := &consoleSink{out: stdout, rendered: make(map[schema.SessionKey]int)}
	manager := panelconn.NewManager(
		panelconn.NetDialer{Network: cfg.Backend.Network, Addr: cfg.Backend.Addr},
		panelconn.Hooks{},
		panelconn.Options{
			AutoReconnect:  cfg.Backend.AutoReconnect,
			ReconnectDelay: reconnectDelay(cfg),
			Logger:         logger,
		},
	)
	defer func() { _ = manager.Close() }()

	panel := core.NewPanel(core.PanelOptions{
		Logger:     logger,
		Prefs:      prefs,
		Sync:       announce,
		Bus:        bus,
		Conn:       manager,
		Effects:    consoleEffects{log: logger, out: stdout},
		Sink:       sink,
		MaxEntries: cfg.Panel.MaxEntries,
	})
	manager.SetHooks(panelconn.Hooks{
		OnOpen:  panel.HandleOpen,
		OnClose: panel.HandleClose,
		OnFrame: panel.HandleFrame,
	})

	if err := manager.Connect(ctx); err != nil && !cfg.Backend.AutoReconnect {
		return err
	}
	panel.Start(ctx)

	for _, notebook := range notebooks {
		if _, err := panel.OpenNotebook(notebook); err != nil {
			return fmt.Errorf("open %s: %w", notebook, err)
		}
	}

	return promptLoop(ctx, panel, stdin, stdout)
}

func seedPrefs(prefs *threadstore.Store, cfg appconfig.Config) {
	prefs.Update(func(state *threadstore.PanelState) {
		if state.Sandbox == "" {
			state.Sandbox = cfg.Panel.Sandbox
		}
		if state.CommandPath == "" {
			state.CommandPath = cfg.Backend.CommandPath
		}
		state.NotifyOnDone = cfg.Notify.OnDone
		state.NotifyMinSeconds = cfg.Notify.MinSeconds
	})
}

func reconnectDelay(cfg appconfig.Config) time.Duration {
	return time.Duration(cfg.Backend.ReconnectDelayMS) * time.Millisecond
}

// promptLoop reads lines from stdin. Plain lines become prompts on the
// focused conversation; slash commands drive panel operations.
func promptLoop(ctx context.Context, panel *core.Panel, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runSlashCommand(panel, line, stdout); quit {
				return nil
			}
			continue
		}
		focused := panel.Registry().Focused()
		if focused == "" {
			_, _ = fmt.Fprintln(stdout, "no focused notebook")
			continue
		}
		if err := panel.SendPrompt(focused, line, core.PromptOptions{}); err != nil {
			_, _ = fmt.Fprintf(stdout, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runSlashCommand(panel *core.Panel, line string, stdout io.Writer) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/open":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(stdout, "usage: /open <notebook>")
			return false
		}
		if _, err := panel.OpenNotebook(fields[1]); err != nil {
			_, _ = fmt.Fprintf(stdout, "open failed: %v\n", err)
		}
	case "/close":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(stdout, "usage: /close <notebook>")
			return false
		}
		panel.CloseNotebook(fields[1])
	case "/focus":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(stdout, "usage: /focus <notebook>")
			return false
		}
		panel.Focus(schema.SessionKeyForNotebook(fields[1]))
	case "/new":
		if focused := panel.Registry().Focused(); focused != "" {
			if _, err := panel.NewThread(focused); err != nil {
				_, _ = fmt.Fprintf(stdout, "new thread failed: %v\n", err)
			}
		}
	case "/cancel":
		if focused := panel.Registry().Focused(); focused != "" {
			if err := panel.CancelRun(focused); err != nil {
				_, _ = fmt.Fprintf(stdout, "cancel failed: %v\n", err)
			}
		}
	case "/delete-all":
		if err := panel.DeleteAllSessions(); err != nil {
			_, _ = fmt.Fprintf(stdout, "delete all failed: %v\n", err)
		}
	case "/limits":
		if err := panel.RefreshRateLimits(); err != nil {
			_, _ = fmt.Fprintf(stdout, "refresh failed: %v\n", err)
		} else if limits := panel.RateLimits(); len(limits.Snapshot) > 0 {
			_, _ = fmt.Fprintf(stdout, "rate limits (as of %s): %s\n", limits.FetchedAt.Format("15:04:05"), limits.Snapshot)
		}
	default:
		_, _ = fmt.Fprintf(stdout, "unknown command %s\n", fields[0])
	}
	return false
}

// consoleSink renders conversation updates incrementally: only entries
// not yet printed for the session, plus its progress line.
type consoleSink struct {
	out io.Writer

	mu       sync.Mutex
	rendered map[schema.SessionKey]int
	progress map[schema.SessionKey]string
}

func (s *consoleSink) SessionUpdated(snap schema.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.rendered[snap.Key]
	if seen > len(snap.Entries) {
		// The transcript was replaced (new thread); rerender from the top.
		seen = 0
	}
	for _, entry := range snap.Entries[seen:] {
		_, _ = fmt.Fprintln(s.out, renderEntry(snap, entry))
	}
	s.rendered[snap.Key] = len(snap.Entries)
	if s.progress == nil {
		s.progress = make(map[schema.SessionKey]string)
	}
	if snap.Progress != "" && snap.Progress != s.progress[snap.Key] {
		_, _ = fmt.Fprintf(s.out, "[%s] … %s\n", shortLabel(snap), snap.Progress)
	}
	s.progress[snap.Key] = snap.Progress
}

func renderEntry(snap schema.SessionSnapshot, entry schema.ChatEntry) string {
	label := shortLabel(snap)
	switch entry.Kind {
	case schema.EntryRunDivider:
		return fmt.Sprintf("[%s] ── run finished (%dms) ──", label, entry.ElapsedMS)
	case schema.EntryActivity:
		if entry.Activity == nil {
			return fmt.Sprintf("[%s] (activity)", label)
		}
		if entry.Activity.Detail != "" {
			return fmt.Sprintf("[%s] %s: %s", label, entry.Activity.Title, schema.FirstLine(entry.Activity.Detail))
		}
		return fmt.Sprintf("[%s] %s", label, entry.Activity.Title)
	default:
		return fmt.Sprintf("[%s] %s: %s", label, entry.Role, entry.Text)
	}
}

func shortLabel(snap schema.SessionSnapshot) string {
	return schema.TruncateLabel(snap.NotebookPath, 24)
}

// consoleEffects maps host side effects onto a terminal session.
type consoleEffects struct {
	log pslog.Logger
	out io.Writer
}

func (e consoleEffects) RefreshNotebook(path string) {
	e.log.Info("notebook changed on disk", "path", path)
}

func (e consoleEffects) Notify(n core.Notification) {
	_, _ = fmt.Fprintf(e.out, "\a%s: %s\n", n.Title, n.Body)
}

func (e consoleEffects) NotifyPermitted() bool { return true }
