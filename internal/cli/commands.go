package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"tradejournal/internal/config"
	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRootCmd создает корневую команду journal
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trading journal tools",
		Long: `Offline tools for the trading journal: compute statistics from an export
and provision API tokens.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newHashTokenCmd())
	rootCmd.AddCommand(newUserCmd())

	return rootCmd
}

// SnapshotReport вывод команды snapshot
type SnapshotReport struct {
	Snapshot *models.Snapshot         `json:"snapshot"`
	Accepted int                      `json:"accepted"`
	Issues   []models.DataIssue       `json:"normalization_issues"`
	Rejected []journal.RejectedRecord `json:"rejected"`
}

// snapshotFlags параметры команды snapshot
type snapshotFlags struct {
	file      string
	refDate   string
	weekStart string
	timezone  string
	periods   int
	metric    string
}

func newSnapshotCmd() *cobra.Command {
	var f snapshotFlags

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute statistics from a JSON export",
		Long: `Normalize a loose JSON export (array or {"trades": [...]}) and print
the aggregated snapshot. Records that cannot be used are listed in "rejected".
Example: journal snapshot --file trades.json --ref-date 2024-03-15 --week-start sunday`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", `Path to export ("-" for stdin)`)
	cmd.Flags().StringVar(&f.refDate, "ref-date", "", "Reference date for today/week/month (YYYY-MM-DD or RFC3339, now if empty)")
	cmd.Flags().StringVar(&f.weekStart, "week-start", "monday", "First day of week: monday or sunday")
	cmd.Flags().StringVar(&f.timezone, "timezone", "UTC", "IANA timezone for day boundaries")
	cmd.Flags().IntVar(&f.periods, "periods", journal.DefaultSparklinePeriods, "Sparkline points")
	cmd.Flags().StringVar(&f.metric, "metric", string(journal.MetricCumulativePnL), "Sparkline metric")
	cmd.MarkFlagRequired("file")

	return cmd
}

// snapshotOptions собирает Options из флагов, накапливая все ошибки
func snapshotOptions(f snapshotFlags) (journal.Options, time.Time, error) {
	opts := journal.DefaultOptions()
	ref := time.Now()
	var errs utils.ValidationErrors

	ws, err := utils.ParseWeekStart(f.weekStart)
	errs.AddError("week-start", err)
	loc, err := utils.LoadLocation(f.timezone)
	errs.AddError("timezone", err)
	errs.AddError("periods", utils.ValidateSparklinePeriods(f.periods))
	metric, err := journal.ParseMetric(f.metric)
	errs.AddError("metric", err)

	if f.refDate != "" && loc != nil {
		t, err := utils.ParseDate(f.refDate, loc)
		errs.AddError("ref-date", err)
		ref = t
	}
	if err := errs.Err(); err != nil {
		return opts, ref, err
	}

	opts.WeekStart = ws
	opts.Location = loc
	opts.SparklinePeriods = f.periods
	opts.SparklineMetric = metric
	return opts, ref, nil
}

func runSnapshot(stdin io.Reader, out io.Writer, f snapshotFlags) error {
	opts, ref, err := snapshotOptions(f)
	if err != nil {
		return err
	}

	var data []byte
	if f.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(f.file)
	}
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}

	raws, malformed, err := journal.DecodeRawTrades(data)
	if err != nil {
		return err
	}

	batch := journal.Normalizer{Location: opts.Location}.NormalizeBatch(raws)
	journal.ExplainRejected(batch.Rejected, malformed)

	report := SnapshotReport{
		Snapshot: journal.Aggregate(batch.Trades, ref, opts),
		Accepted: len(batch.Trades),
		Issues:   batch.Issues,
		Rejected: batch.Rejected,
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newHashTokenCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "hash-token [SECRET]",
		Short: "Print a bcrypt hash for an API token secret",
		Long: `Hash a token secret for the users.token_hash column. Without SECRET a random
one is generated. With --user the full bearer token "<user>.<secret>" is printed too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ""
			if len(args) == 1 {
				secret = args[0]
			}
			return runHashToken(cmd.OutOrStdout(), userID, secret)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID to build the bearer token for")
	return cmd
}

func runHashToken(out io.Writer, userID, secret string) error {
	if userID != "" {
		if err := utils.ValidateUserID(userID); err != nil {
			return err
		}
	}

	generated := secret == ""
	if generated {
		var err error
		if secret, err = crypto.GenerateToken(); err != nil {
			return err
		}
	}

	hash, err := crypto.HashToken(secret)
	if err != nil {
		return err
	}

	if generated {
		fmt.Fprintf(out, "secret: %s\n", secret)
	}
	if userID != "" {
		fmt.Fprintf(out, "token:  %s.%s\n", userID, secret)
	}
	fmt.Fprintf(out, "hash:   %s\n", hash)
	return nil
}

// userStore операции с пользователями, нужные CLI
type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateTokenHash(ctx context.Context, id, hash string) error
}

// tradePurger операции со сделками, нужные user purge
type tradePurger interface {
	Count(ctx context.Context, userID string) (int, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
}

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage journal users (uses DB_* environment)",
	}

	var displayName string
	addCmd := &cobra.Command{
		Use:   "add USER_ID",
		Short: "Create a user and print its API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd.Context(), func(store userStore) error {
				return runUserAdd(cmd.Context(), cmd.OutOrStdout(), store, args[0], displayName)
			})
		},
	}
	addCmd.Flags().StringVar(&displayName, "name", "", "Display name")

	rotateCmd := &cobra.Command{
		Use:   "rotate USER_ID",
		Short: "Issue a new API token, invalidating the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd.Context(), func(store userStore) error {
				return runUserRotate(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			})
		},
	}

	var dryRun bool
	purgeCmd := &cobra.Command{
		Use:   "purge USER_ID",
		Short: "Delete all trades of a user",
		Long: `Delete every trade of the user. The user and its token are kept.
With --dry-run only the number of trades is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(db *sql.DB) error {
				return runUserPurge(cmd.Context(), cmd.OutOrStdout(), repository.NewTradeRepository(db), args[0], dryRun)
			})
		},
	}
	purgeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only count trades")

	userCmd.AddCommand(addCmd, rotateCmd, purgeCmd)
	return userCmd
}

func withUserStore(ctx context.Context, fn func(userStore) error) error {
	return withDB(ctx, func(db *sql.DB) error {
		return fn(repository.NewUserRepository(db))
	})
}

// withDB подключается к БД из конфигурации окружения
func withDB(ctx context.Context, fn func(*sql.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := repository.Open(ctx, repository.OpenConfig{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN(),
		MaxConns: 1,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

// issueToken генерирует секрет и его bcrypt хеш
func issueToken() (secret, hash string, err error) {
	if secret, err = crypto.GenerateToken(); err != nil {
		return "", "", err
	}
	if hash, err = crypto.HashToken(secret); err != nil {
		return "", "", err
	}
	return secret, hash, nil
}

func runUserAdd(ctx context.Context, out io.Writer, store userStore, userID, displayName string) error {
	if err := utils.ValidateUserID(userID); err != nil {
		return err
	}

	secret, hash, err := issueToken()
	if err != nil {
		return err
	}

	if err := store.Create(ctx, &models.User{ID: userID, DisplayName: displayName, TokenHash: hash}); err != nil {
		return fmt.Errorf("failed to create user %s: %w", userID, err)
	}

	fmt.Fprintf(out, "created user %s\ntoken: %s.%s\n", userID, userID, secret)
	return nil
}

func runUserRotate(ctx context.Context, out io.Writer, store userStore, userID string) error {
	if err := utils.ValidateUserID(userID); err != nil {
		return err
	}

	user, err := store.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user %s: %w", userID, err)
	}

	secret, hash, err := issueToken()
	if err != nil {
		return err
	}

	if err := store.UpdateTokenHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to rotate token for %s: %w", userID, err)
	}

	label := userID
	if user.DisplayName != "" {
		label = fmt.Sprintf("%s (%s)", userID, user.DisplayName)
	}
	fmt.Fprintf(out, "rotated token for %s\ntoken: %s.%s\n", label, userID, secret)
	return nil
}

func runUserPurge(ctx context.Context, out io.Writer, store tradePurger, userID string, dryRun bool) error {
	if err := utils.ValidateUserID(userID); err != nil {
		return err
	}

	if dryRun {
		n, err := store.Count(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to count trades of %s: %w", userID, err)
		}
		fmt.Fprintf(out, "%s has %d trades\n", userID, n)
		return nil
	}

	n, err := store.DeleteAllByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to purge trades of %s: %w", userID, err)
	}
	fmt.Fprintf(out, "deleted %d trades of %s\n", n, userID)
	return nil
}
