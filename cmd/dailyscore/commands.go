package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/dailyscore/internal/db/memory"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/internal/setup"
	"github.com/thebtf/dailyscore/internal/tracker"
	"github.com/thebtf/dailyscore/pkg/client"
	"github.com/thebtf/dailyscore/pkg/models"
)

// classifyCmd categorizes task text without a running worker.
func classifyCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "classify <title>",
		Short: "Suggest a category for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cls, cleanup := setup.Classifier(cfg, log.Logger)
			defer cleanup()

			res := cls.Classify(cmd.Context(), strings.Join(args, " "), description)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, confidence %.2f)\n", res.Category, res.Source, res.Confidence)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	return cmd
}

// migrateCmd opens the configured database, which applies pending migrations.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := setup.OpenStore(cfg)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DBDriver, err)
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.DBDriver)
			return nil
		},
	}
}

// settleCmd runs the weekly settlement for one account.
func settleCmd() *cobra.Command {
	var (
		userID string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Run the weekly settlement for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := setup.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			trackers, err := setup.NewTrackers(store, nil, nil, cfg, log.Logger)
			if err != nil {
				return err
			}

			var res *scoring.SettlementResult
			if force {
				res, err = trackers.Users.ForceSettle(cmd.Context(), userID)
			} else {
				res, err = trackers.Users.SettleIfDue(cmd.Context(), userID)
			}
			if err != nil {
				return fmt.Errorf("settle %s: %w", userID, err)
			}
			printSettlement(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "account ID")
	cmd.Flags().BoolVar(&force, "force", false, "settle even if no boundary has passed")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printSettlement(w io.Writer, res *scoring.SettlementResult) {
	if res == nil {
		fmt.Fprintln(w, "Nothing to settle: already settled for this week")
		return
	}
	fmt.Fprintf(w, "Settled at %s\n", res.SettledAt.Format(time.RFC3339))
	for _, adj := range res.Adjustments {
		fmt.Fprintf(w, "  %-9s %2d -> %2d  (%d/%d done)\n", adj.Category, adj.Before, adj.After, adj.Completed, adj.Total)
	}
	if len(res.Adjustments) == 0 {
		fmt.Fprintln(w, "  no tasks last cycle, points unchanged")
	}
	for _, b := range res.NewBadges {
		fmt.Fprintf(w, "  new badge: %s\n", b.Name)
	}
}

// statusCmd reports on the running worker.
func statusCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker health and, with --user, the weekly summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), client.RequestTimeout)
			defer cancel()

			c := client.ForPort(cfg.WorkerPort, client.WithToken(cfg.AuthToken), client.WithUser(userID))
			out := cmd.OutOrStdout()

			h, err := c.Health(ctx)
			if h == nil {
				fmt.Fprintf(out, "Worker on port %d is not running\n", cfg.WorkerPort)
				return err
			}
			fmt.Fprintf(out, "Worker %s: %s (up %s, database %s, classifier %s, %d streams)\n",
				h.Version, h.Status, h.Uptime, h.Database, h.Classifier, h.Streams)
			if !client.VersionsCompatible(h.Version, Version) {
				fmt.Fprintf(out, "Warning: worker version %s differs from CLI %s\n", h.Version, Version)
			}
			if err != nil || userID == "" {
				return err
			}

			s, err := c.Summary(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Week %s to %s: %d/%d done, %d points\n",
				s.Week.Start.Format("Jan 2"), s.Week.End.Format("Jan 2"),
				s.Stats.Completed, s.Stats.Total, s.Stats.TotalPoints)
			for _, cat := range models.AllCategories {
				if pts, ok := s.CurrentPoints[cat]; ok {
					fmt.Fprintf(out, "  %-9s %d pts\n", cat, pts)
				}
			}
			fmt.Fprintf(out, "Streak %d (longest %d), %d badges\n", s.Streaks.Current, s.Streaks.Longest, len(s.Badges))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "account ID for the summary")
	return cmd
}

// nextUpdateCmd prints the next settlement boundary in the configured timezone.
func nextUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-update",
		Short: "Show when the next weekly settlement happens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := setup.Engine(cfg, log.Logger)
			if err != nil {
				return err
			}
			t, err := tracker.New(tracker.Options{Store: memory.New(), Engine: engine}, log.Logger)
			if err != nil {
				return err
			}
			next := t.NextUpdate()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (in %s)\n", next.Formatted, next.Until)
			return nil
		},
	}
}
