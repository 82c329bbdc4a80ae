// pedrobook is a natural-language scheduling assistant. It turns one chat
// message into at most one booking-provider call and prints the reply.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypete/pedrobook/pkg/booking"
	"github.com/soypete/pedrobook/pkg/config"
	"github.com/soypete/pedrobook/pkg/database"
	"github.com/soypete/pedrobook/pkg/identity"
	"github.com/soypete/pedrobook/pkg/llm"
	"github.com/soypete/pedrobook/pkg/mailer"
	"github.com/soypete/pedrobook/pkg/orchestrator"
	"github.com/soypete/pedrobook/pkg/repl"
	"github.com/soypete/pedrobook/pkg/tools"
)

var version = "dev"

var (
	configFile string
	rosterFile string
	timeoutSec int

	// run command flags
	message string

	// serve command flags
	port string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pedrobook",
		Short: "Natural-language scheduling assistant",
		Long: `pedrobook is a scheduling assistant backed by a local language model.

It reads one message, picks at most one booking operation (availability,
bookings, create, update, delete, confirmation email) and replies in plain
English. The caller and everyone they may mention come from a roster file.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: .pedrobook.json)")
	rootCmd.PersistentFlags().StringVar(&rosterFile, "roster", "", "Path to roster file (default: from config)")
	rootCmd.PersistentFlags().IntVar(&timeoutSec, "timeout", 120, "Timeout per message in seconds")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(replCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Handle a single message and print the reply",
		Long: `Handle one message and exit.

Examples:
  pedrobook run -m "What times am I free on Friday afternoon?"
  pedrobook run -m "Book 30 minutes with @onboarding tomorrow at 10am"`,
		RunE: runOnce,
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to handle (required)")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session, one message per line",
		RunE:  runRepl,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pedrobook %s\n", version)
		},
	}
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	request orchestrator.Request
	db      *database.DB
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// setup loads config and roster and wires the orchestrator. Provider
// credentials stay inside the bound clients; nothing downstream sees them.
func setup(ctx context.Context) (*app, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rosterPath := cfg.Roster.Path
	if rosterFile != "" {
		rosterPath = rosterFile
	}
	roster, err := identity.LoadRoster(rosterPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	// References carrying a roster id must resolve to a known user; a typo in
	// roster.yaml should fail here, not mid-conversation.
	for _, ref := range roster.References {
		if ref.ID == 0 {
			continue
		}
		if _, err := identity.Resolve(ref, roster.Users); err != nil {
			return nil, fmt.Errorf("roster reference does not resolve: %w", err)
		}
	}

	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	client := booking.NewClient(apiKey, cfg.Provider.BaseURL, roster.Caller.ID)
	mail := mailer.New(apiKey, cfg.Provider.BaseURL, cfg.Mail.SenderEmail)

	registry := tools.NewRegistry()
	toolset := tools.NewBookingToolset(client, mail, roster.Caller, roster.Users)
	if err := toolset.RegisterAll(registry); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	oracle := llm.NewServerOracle(llm.ServerOracleConfig{
		BaseURL:     cfg.Model.ServerURL,
		ModelName:   cfg.Model.ModelName,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	})

	a := &app{
		cfg: cfg,
		request: orchestrator.Request{
			Caller:     roster.Caller,
			References: roster.References,
		},
	}

	var opts []orchestrator.Option
	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, database.Config{DSN: cfg.Database.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript store: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate transcript store: %w", err)
		}
		a.db = db
		opts = append(opts, orchestrator.WithTranscriptStore(db))
	}

	a.orch = orchestrator.New(oracle, registry, opts...)
	return a, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runCtx, runCancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer runCancel()

	reply, err := a.orch.Run(runCtx, message, a.request)
	if err != nil {
		return fmt.Errorf("request did not complete: %w", err)
	}

	fmt.Println(reply)
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := repl.New(a.orch, a.request, time.Duration(timeoutSec)*time.Second)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
