package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/config"
	"quizdesk-service/internal/logger"
)

const rekeyConfirmWord = "REKEY"

// NewRekeyUsersCmd moves user records from opaque IDs to their national identifiers.
func NewRekeyUsersCmd(configPath *string) *cobra.Command {
	var dryRun, yes bool
	cmd := &cobra.Command{
		Use:   "rekey-users",
		Short: "Re-key user records by national identifier (irreversible)",
		Long: "Re-keys every user record whose ID differs from its national identifier.\n" +
			"The move is applied as a single batch and cannot be undone. Stop writers before running it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRekey(cmd.Context(), *configPath, dryRun, yes, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without writing")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the interactive confirmation")
	return cmd
}

func runRekey(ctx context.Context, configPath string, dryRun, yes bool, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	log := logger.New(cfg.Logging)
	defer log.Sync()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	rekeyer := app.NewUserRekeyer(b.store, log.Named("rekey"), nil)
	plan, err := rekeyer.Plan(ctx)
	if err != nil {
		return err
	}
	printPlan(out, plan)
	if dryRun || len(plan.Moves) == 0 {
		return nil
	}
	if !yes && !confirm(in, out, len(plan.Moves)) {
		fmt.Fprintln(out, "aborted, nothing written")
		return nil
	}

	report, err := rekeyer.Run(ctx, app.RekeyOptions{Confirmed: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "re-keyed %d users\n", len(report.Plan.Moves))
	return nil
}

func printPlan(out io.Writer, plan app.RekeyPlan) {
	fmt.Fprintf(out, "%d to move, %d skipped\n", len(plan.Moves), len(plan.Skipped))
	for _, m := range plan.Moves {
		fmt.Fprintf(out, "  move %s -> %s (%s)\n", m.From, m.To, m.User.DisplayName())
	}
	for _, s := range plan.Skipped {
		fmt.Fprintf(out, "  skip %s: %s\n", s.UserID, s.Reason)
	}
}

func confirm(in io.Reader, out io.Writer, moves int) bool {
	fmt.Fprintf(out, "This permanently re-keys %d users. Type %s to continue: ", moves, rekeyConfirmWord)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return strings.TrimSpace(line) == rekeyConfirmWord
}
