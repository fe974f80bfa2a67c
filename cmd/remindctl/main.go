// Command remindctl is an offline-first RE:MIND client. Changes are kept in
// a local state file and replayed against the server on sync.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/logging"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/nlp"
	"github.com/dukerupert/remind/internal/syncer"
	"github.com/dukerupert/remind/internal/voice"
)

type app struct {
	dir      string
	logLevel string
	settings settings
	state    *syncer.State
	recon    *syncer.Reconciler
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "remindctl",
		Short:         "Offline-first RE:MIND client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.dir, "dir", defaultDir(), "directory for settings and local state")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		a.loginCommand(),
		a.parseCommand(),
		a.addCommand(),
		a.listCommand(),
		a.rmCommand(),
		a.syncCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	logger := logging.Setup(a.logLevel)
	s, err := loadSettings(a.dir)
	if err != nil {
		return err
	}
	a.settings = s

	a.state, err = syncer.LoadState(filepath.Join(a.dir, "state.json"))
	if err != nil {
		return err
	}
	remote := syncer.NewHTTPRemote(s.Server, s.Token, &http.Client{Timeout: 15 * time.Second})
	a.recon = syncer.New(remote, a.state, syncer.Options{}, logger.With("component", "sync"))
	return nil
}

// trySync syncs when logged in. A failure leaves changes queued locally.
func (a *app) trySync(ctx context.Context, cmd *cobra.Command) {
	if a.settings.Token == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "saved locally; run remindctl login to sync")
		return
	}
	rep, err := a.recon.Sync(ctx)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "saved locally; sync failed: %v\n", err)
		return
	}
	printReport(cmd, rep)
}

func printReport(cmd *cobra.Command, rep syncer.Report) {
	fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d, pulled %d\n", rep.Synced, rep.Failed, rep.Pulled)
}

func (a *app) loginCommand() *cobra.Command {
	var server, email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = a.settings.Server
			}
			if password == "" {
				password = os.Getenv("REMIND_PASSWORD")
			}
			token, err := login(cmd.Context(), server, email, password)
			if err != nil {
				return err
			}
			if err := saveSettings(a.dir, settings{Server: server, Token: token}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in to %s as %s\n", server, email)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server base URL")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or REMIND_PASSWORD)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func login(ctx context.Context, server, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/auth/login", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", out.Error)
	}
	return out.Token, nil
}

func (a *app) parseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <transcript>",
		Short: "Show how a voice transcript would be interpreted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, rest := voice.StripTrigger(strings.Join(args, " "), voice.DefaultTriggers)
			parsed, err := voice.Parse(rest, time.Now())
			if err != nil {
				return err
			}
			parsed.Trigger = trigger
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}
}

func (a *app) addCommand() *cobra.Command {
	var (
		duration time.Duration
		category string
		location string
	)
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: `Add an event from natural language, e.g. "dentist tomorrow at 3pm"`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			parsed := nlp.Parse(text, time.Now())
			if !parsed.Matched {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no date found, using now")
			}
			cat := model.Category(category)
			if cat == "" {
				cat = categorize.Analyze(text).Category
			}
			a.recon.Create(model.Event{
				Title:     parsed.Title,
				Category:  cat,
				StartTime: parsed.Date,
				EndTime:   parsed.Date.Add(duration),
				Location:  location,
				Status:    model.EventStatusActive,
				Source:    model.SourceSync,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "queued %q at %s [%s]\n", parsed.Title, parsed.Date.Format("Mon Jan 2 15:04"), cat)
			a.trySync(cmd.Context(), cmd)
			return a.state.Save()
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", voice.DefaultEventDuration, "event length")
	cmd.Flags().StringVar(&category, "category", "", "category (default: inferred)")
	cmd.Flags().StringVar(&location, "location", "", "location")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events in the local copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTART\tCATEGORY\tTITLE")
			for _, e := range a.state.Events() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.StartTime.Local().Format("Mon Jan 2 15:04"), e.Category, e.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if n := len(a.state.Pending()); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d change(s) waiting to sync\n", n)
			}
			return nil
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a.recon.Delete(id)
			a.trySync(cmd.Context(), cmd)
			return a.state.Save()
		},
	}
}

func (a *app) syncCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull remote updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.settings.Token == "" {
				return fmt.Errorf("not logged in")
			}
			if !watch {
				rep, err := a.recon.Sync(cmd.Context())
				if err != nil {
					return err
				}
				printReport(cmd, rep)
				return a.state.Save()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.recon.OnSync = func(rep syncer.Report) {
				if rep.Synced+rep.Failed+rep.Pulled > 0 {
					printReport(cmd, rep)
				}
				if err := a.state.Save(); err != nil {
					slog.Error("save state", "error", err)
				}
			}
			a.recon.Notify()
			a.recon.Run(ctx)
			return a.state.Save()
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep syncing until interrupted")
	return cmd
}
