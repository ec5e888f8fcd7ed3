package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	arnats "github.com/Strob0t/agentrouter/internal/adapter/nats"
	"github.com/Strob0t/agentrouter/internal/adapter/postgres"
	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/port/messagequeue"
	"github.com/Strob0t/agentrouter/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "list-reviews":
		return runAdminListReviews(args[1:])
	case "resolve-review":
		return runAdminResolveReview(args[1:])
	case "tail-events":
		return runAdminTailEvents(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentrouter admin <command> [options]

Commands:
  migrate          Apply database migrations
  list-reviews     List review records
  resolve-review   Move a review to a new status
  tail-events      Print feed events from NATS until interrupted
  help             Show this help message

Examples:
  agentrouter admin migrate
  agentrouter admin list-reviews --status pending --limit 20
  agentrouter admin resolve-review --id 7c9e... --status approved --reviewer alice
  agentrouter admin tail-events --subject 'events.review.>'
`)
}

func loadAdminDeps(ctx context.Context) (*service.ReviewService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	reviewSvc := service.NewReviewService(postgres.NewStore(pool), nil)
	return reviewSvc, pool.Close, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	version, err := postgres.RunMigrations(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Database at migration version %d\n", version)
	return nil
}

func runAdminListReviews(args []string) error {
	fs := flag.NewFlagSet("list-reviews", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status (pending, approved, rejected, escalated)")
	limit := fs.Int("limit", review.DefaultListLimit, "maximum number of reviews")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	reviewSvc, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	reviews, err := reviewSvc.List(ctx, review.Filter{Status: review.Status(*status), Limit: *limit})
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}

	if len(reviews) == 0 {
		fmt.Println("No reviews found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOUTPUT_ID\tSTATUS\tREVIEWER\tCREATED_AT")
	for i := range reviews {
		r := &reviews[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.OutputID, r.Status, deref(r.ReviewerID), r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runAdminResolveReview(args []string) error {
	fs := flag.NewFlagSet("resolve-review", flag.ContinueOnError)
	id := fs.String("id", "", "review id (required)")
	status := fs.String("status", "", "target status: approved, rejected or escalated (required)")
	reviewer := fs.String("reviewer", "", "reviewer id")
	notes := fs.String("notes", "", "review notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return errors.New("--id is required")
	}
	if *status == "" {
		return errors.New("--status is required")
	}

	ctx := context.Background()
	reviewSvc, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := reviewSvc.UpdateStatus(ctx, &review.UpdateRequest{
		ID:         *id,
		Status:     review.Status(*status),
		ReviewerID: optional(*reviewer),
		Notes:      optional(*notes),
	})
	if err != nil {
		return fmt.Errorf("resolve review: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Review %s is now %s\n", r.ID, r.Status)
	return nil
}

func runAdminTailEvents(args []string) error {
	fs := flag.NewFlagSet("tail-events", flag.ContinueOnError)
	subject := fs.String("subject", messagequeue.EventSubject(">"), "subject filter within the stream")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := arnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	unsubscribe, err := queue.Subscribe(ctx, *subject, func(_ context.Context, subj string, data []byte) error {
		_, err := fmt.Fprintf(os.Stdout, "%s\t%s\n", subj, data)
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", *subject, err)
	}
	defer unsubscribe()

	fmt.Fprintf(os.Stderr, "Tailing %s (Ctrl-C to stop)\n", *subject)
	<-ctx.Done()
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
