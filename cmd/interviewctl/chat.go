package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/sessionctx"
	"github.com/ashureev/interview-funnel/internal/store"
	"github.com/spf13/cobra"
)

const finishCommand = "/finish"

var chatSessionID string

// chatCmd runs a text-mode interview
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a text-mode interview for a funnel session",
	Long: `Load the session context for a funnel session and run the interview
in the terminal. Type ` + finishCommand + ` once the interview reaches the summary
to finalize it.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Funnel session id")
	_ = chatCmd.MarkFlagRequired("session")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = repo.Close() }()

	client := backend.NewHTTPClient(cfg.Backend.RequestTimeout)
	var reasoner backend.Reasoner = backend.NewHTTPReasoner(cfg.Backend.ReasoningURL, nil)
	if addr := cfg.Backend.ReasoningGRPCAddr; addr != "" {
		g, err := backend.NewGrpcReasoner(backend.DefaultGrpcClientConfig(addr), logger)
		if err != nil {
			return fmt.Errorf("connect reasoning service: %w", err)
		}
		defer g.Close()
		reasoner = g
	}

	loader := sessionctx.NewLoader(repo, backend.NewResearchClient(cfg.Backend.ResearchURL, client), logger)
	registry := interview.NewRegistry(loader, interview.Options{
		Reasoner:        reasoner,
		Transcripts:     repo,
		ExchangeTimeout: cfg.Interview.ExchangeTimeout,
		FinalizeTimeout: cfg.Interview.FinalizeTimeout,
		ContextWindow:   cfg.Interview.ContextWindow,
		MaxQuestions:    cfg.Interview.MaxQuestions,
		Logger:          logger,
	})

	s, err := registry.Start(ctx, chatSessionID)
	if err != nil {
		if errors.Is(err, sessionctx.ErrContextUnavailable) {
			return fmt.Errorf("no quiz results for session %s: take the quiz first", chatSessionID)
		}
		return err
	}

	return chatLoop(ctx, s, os.Stdin, cmd.OutOrStdout())
}

// chatLoop reads one message per line until the interview completes or
// input ends.
func chatLoop(ctx context.Context, s *interview.Session, in io.Reader, out io.Writer) error {
	for _, m := range s.Snapshot().Messages {
		printMessage(out, m)
	}

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.Phase() == domain.PhaseSummary {
			fmt.Fprintf(out, "\nThe interview is complete. Type %s to finalize.\n", finishCommand)
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		if line == finishCommand {
			c, err := s.Finish(ctx)
			if errors.Is(err, interview.ErrInvalidTransition) {
				fmt.Fprintln(out, "The interview isn't ready to finish yet.")
				continue
			}
			if err != nil {
				return err
			}
			printCompletion(out, c)
			return nil
		}

		res, err := s.Submit(ctx, line)
		switch {
		case errors.Is(err, interview.ErrEmptyMessage):
			continue
		case errors.Is(err, interview.ErrNotAcceptingMessages):
			fmt.Fprintln(out, "The interview is no longer accepting messages.")
			continue
		case err != nil:
			return err
		}
		if res.Assistant != nil {
			printMessage(out, *res.Assistant)
		}
		fmt.Fprintf(out, "  [%d%% | %s]\n", res.Progress, strings.Join(res.Topics, ", "))
	}
}

func printMessage(out io.Writer, m domain.Message) {
	if m.Role == domain.RoleUser {
		return
	}
	fmt.Fprintf(out, "\n%s\n\n", m.Content)
}

func printCompletion(out io.Writer, c *interview.Completion) {
	fmt.Fprintf(out, "\nThanks! Interview with %s complete after %d questions.\n", c.CompanyName, c.QuestionCount)
	if len(c.Topics) > 0 {
		fmt.Fprintf(out, "Topics covered: %s\n", strings.Join(c.Topics, ", "))
	}
	for _, step := range c.NextSteps {
		fmt.Fprintf(out, "  - %s\n", step)
	}
}
