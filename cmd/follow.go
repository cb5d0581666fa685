package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/livereload"
	"github.com/conneroisu/postcard/internal/livesync"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/validation"
	"github.com/conneroisu/postcard/internal/watcher"
)

var followCmd = &cobra.Command{
	Use:   "follow <template> <function>",
	Short: "Re-render one preview every time its sources change",
	Long: `Keep a single preview in sync from the terminal. Without --server the
templates are watched and rendered in-process; with --server the command
subscribes to a running preview server's reload channel instead.

In html mode the rendered document is printed after every change. In the
desktop and mobile modes one status line is printed per render. --out writes
the latest HTML to a file in every mode.

While following, type d, m or h and press enter to switch to the desktop,
mobile or html view; ] and [ cycle through them. Switching never re-renders.

Examples:
  postcard follow Welcome Default --out /tmp/welcome.html
  postcard follow Welcome Default --server http://localhost:3883
  postcard follow TextEmail Default --view html`,
	Args: previewArgs,
	RunE: runFollow,
}

var (
	followServer string
	followOut    string
	followView   = livesync.ViewDesktop
)

func init() {
	rootCmd.AddCommand(followCmd)

	followCmd.Flags().StringVar(&followServer, "server", "", "Base URL of a running preview server")
	followCmd.Flags().StringVarP(&followOut, "out", "o", "", "Write the latest HTML to this file")
	followCmd.Flags().Var(&followView, "view", "View mode (desktop|mobile|html)")

	AddFlagValidation(followCmd.Flags(), "server", func(server string) error {
		if server == "" {
			return nil
		}
		return validation.ValidateURL(server)
	})
}

func runFollow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := livesync.Options{
		Function: args[1],
		Mode:     followView,
		Static:   a.cfg.Static,
		Logger:   a.logger,
	}

	if followServer != "" {
		fetcher := &livesync.HTTPFetcher{BaseURL: followServer}
		opts.Template = args[0]
		if c, err := fetcher.Catalog(ctx); err != nil {
			a.logger.Warn(ctx, err, "Could not read the server catalog", "server", followServer)
		} else {
			opts.Template = resolveTemplate(c, args[0])
		}
		opts.Fetcher = fetcher
		opts.Subscriber = livereload.NewSubscriber(livereload.SubscriberOptions{
			URL:      reloadURL(followServer),
			Logger:   a.logger,
			OnStatus: reloadStatusReporter(ctx, a.logger, cmd.ErrOrStderr(), followServer),
		})
	} else {
		opts.Template = resolveTemplate(a.service.Catalog(ctx), args[0])
		opts.Fetcher = livesync.ServiceFetcher{Service: a.service}

		hub := livereload.NewHub(a.logger)
		defer hub.Close()
		fw, err := watcher.WatchSources(ctx, watcher.SourceOptions{
			Roots:    a.cfg.Emails.SourceRoots(),
			Debounce: a.cfg.Development.Debounce,
			Exclude:  a.cfg.Emails.ExcludePatterns,
			Logger:   a.logger,
		}, func([]watcher.ChangeEvent) { hub.Notify() })
		if err != nil {
			return fmt.Errorf("watching %s: %w", a.cfg.Emails.Dir, err)
		}
		defer fw.Stop()
		opts.Subscriber = hub
	}

	session := livesync.NewSession(opts)
	defer session.Close()

	printer := &snapshotPrinter{out: cmd.OutOrStdout(), file: followOut, logger: a.logger}
	session.OnChange(printer.print)
	session.Start()
	go followViewKeys(ctx, cmd.InOrStdin(), session)

	<-ctx.Done()
	return nil
}

// followViewKeys switches the session's view mode from line-buffered input,
// using the same keys as the browser UI.
func followViewKeys(ctx context.Context, in io.Reader, session *livesync.Session) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		mode := session.Snapshot().Mode
		switch strings.TrimSpace(scanner.Text()) {
		case "d":
			mode = livesync.ViewDesktop
		case "m":
			mode = livesync.ViewMobile
		case "h":
			mode = livesync.ViewHTML
		case "]":
			mode = mode.Next()
		case "[":
			mode = mode.Previous()
		default:
			continue
		}
		session.SetViewMode(mode)
	}
}

// reloadStatusReporter logs reload channel transitions and prints
// troubleshooting steps once retries are exhausted. The last render stays on
// screen.
func reloadStatusReporter(ctx context.Context, logger logging.Logger, errOut io.Writer, server string) func(livereload.Status, error) {
	return func(s livereload.Status, err error) {
		switch {
		case s == livereload.StatusFailed:
			logger.Error(ctx, err, "Reload channel failed", "server", server)
			fmt.Fprintln(errOut, errors.FormatSuggestions(
				"Lost the reload channel to "+server+"; showing the last render",
				errors.WebSocketError(err, &errors.SuggestionContext{ServerURL: server}),
			))
		case err != nil:
			logger.Warn(ctx, err, "Reload channel", "status", s.String())
		default:
			logger.Debug(ctx, "Reload channel", "status", s.String())
		}
	}
}

// reloadURL maps the server's base URL to its websocket endpoint.
func reloadURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// snapshotPrinter renders session snapshots to the terminal. Calls are
// serialized by the session.
type snapshotPrinter struct {
	out    io.Writer
	file   string
	logger logging.Logger
}

func (p *snapshotPrinter) print(snap livesync.Snapshot) {
	name := snap.Template + "/" + snap.Function

	switch snap.State {
	case livesync.Loading:
		if snap.Mode != livesync.ViewHTML {
			fmt.Fprintf(p.out, "[%s] rendering %s\n", snap.State, name)
		}
		return
	case livesync.Errored:
		fmt.Fprintf(p.out, "[%s] %s: %v\n", snap.State, name, snap.Err)
		return
	case livesync.Loaded:
	default:
		return
	}

	res := snap.Result
	if res == nil {
		return
	}
	if !res.OK() {
		fmt.Fprintf(p.out, "[%s] %s failed:\n", snap.State, name)
		for _, e := range res.Errors {
			fmt.Fprintln(p.out, "  "+e.String())
		}
		return
	}

	html := *res.HTML
	if p.file != "" {
		if err := os.WriteFile(p.file, []byte(html), 0o644); err != nil {
			p.logger.Error(context.Background(), err, "Failed to write preview", "path", p.file)
		}
	}

	if snap.Mode == livesync.ViewHTML {
		fmt.Fprintln(p.out, html)
		return
	}
	fmt.Fprintf(p.out, "[%s] %s (%s, %d bytes, render #%d)\n", snap.State, name, snap.Mode, len(html), snap.Fetches)
	if snap.NullState {
		fmt.Fprintln(p.out, "  Only the bundled examples are present. Add your own templates to get started.")
	}
}
