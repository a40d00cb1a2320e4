package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/staybooking/api"
	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/spf13/cobra"
)

type Checker interface {
	CheckConflicts(ctx context.Context, unitID int64, r domain.DateRange, excludeBookingID *string) (*domain.ConflictCheck, error)
	FindAlternativePeriods(ctx context.Context, unitID int64, preferred domain.DateRange, maxDaysBefore, maxDaysAfter int) ([]domain.AlternativePeriod, error)
}

type Rebuilder interface {
	Rebuild(ctx context.Context, unitIDs []int64) error
}

// Backend is what the commands run against. Close may be nil.
type Backend struct {
	Calendar  Checker
	Index     Rebuilder
	JWTSecret []byte
	Close     func() error
}

type Loader func(ctx context.Context) (*Backend, error)

type RootOption func(*rootOptions)

type rootOptions struct {
	memory Loader
}

// WithMemoryBackend is used instead of the configured backend when --memory is set.
func WithMemoryBackend(load Loader) RootOption {
	return func(o *rootOptions) {
		o.memory = load
	}
}

func NewRootCmd(load Loader, opts ...RootOption) *cobra.Command {
	var o rootOptions
	for _, opt := range opts {
		opt(&o)
	}

	root := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Inspect unit calendars and maintain the availability index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var inMemory bool
	root.PersistentFlags().BoolVar(&inMemory, "memory", false, "dry run against an empty in-process calendar; nothing is pushed to the index")

	pick := func(ctx context.Context) (*Backend, error) {
		if !inMemory {
			return load(ctx)
		}
		if o.memory == nil {
			return nil, fmt.Errorf("--memory is not supported by this build")
		}
		return o.memory(ctx)
	}
	root.AddCommand(
		CheckCmd(pick),
		AlternativesCmd(pick),
		ReindexCmd(pick),
		TokenCmd(pick),
	)
	return root
}

func withBackend(cmd *cobra.Command, load Loader, run func(ctx context.Context, b *Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := load(ctx)
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer b.Close()
	}
	return run(ctx, b)
}

func rangeFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("unit", 0, "unit id")
	cmd.Flags().String("start", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("end", "", "day after the last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func readRange(cmd *cobra.Command) (int64, domain.DateRange, error) {
	unitID, _ := cmd.Flags().GetInt64("unit")
	if unitID <= 0 {
		return 0, domain.DateRange{}, fmt.Errorf("--unit must be positive")
	}
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return 0, domain.DateRange{}, fmt.Errorf("--start: %w", err)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return 0, domain.DateRange{}, fmt.Errorf("--end: %w", err)
	}
	return unitID, domain.NewDateRange(from, to), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func CheckCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "List the conflicts of a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitID, r, err := readRange(cmd)
			if err != nil {
				return err
			}
			exclude, _ := cmd.Flags().GetString("exclude")
			var excludeID *string
			if exclude != "" {
				excludeID = &exclude
			}
			return withBackend(cmd, load, func(ctx context.Context, b *Backend) error {
				check, err := b.Calendar.CheckConflicts(ctx, unitID, r, excludeID)
				if err != nil {
					return err
				}
				return printJSON(cmd, check)
			})
		},
	}
	rangeFlags(cmd)
	cmd.Flags().String("exclude", "", "booking id to ignore")
	return cmd
}

func AlternativesCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alternatives",
		Short: "List conflict-free periods near a preferred range",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitID, r, err := readRange(cmd)
			if err != nil {
				return err
			}
			before, _ := cmd.Flags().GetInt("before")
			after, _ := cmd.Flags().GetInt("after")
			return withBackend(cmd, load, func(ctx context.Context, b *Backend) error {
				periods, err := b.Calendar.FindAlternativePeriods(ctx, unitID, r, before, after)
				if err != nil {
					return err
				}
				return printJSON(cmd, periods)
			})
		},
	}
	rangeFlags(cmd)
	cmd.Flags().Int("before", 14, "days the window may start before the preferred range")
	cmd.Flags().Int("after", 14, "days the window may end after the preferred range")
	return cmd
}

func ReindexCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [unit-id...]",
		Short: "Push fresh availability snapshots for the given units, or for every unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitIDs := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid unit id %q", arg)
				}
				unitIDs = append(unitIDs, id)
			}
			return withBackend(cmd, load, func(ctx context.Context, b *Backend) error {
				if err := b.Index.Rebuild(ctx, unitIDs); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "reindex finished")
				return nil
			})
		},
	}
}

func TokenCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an admin or owner token for the block endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if role != api.RoleAdmin && role != api.RoleOwner {
				return fmt.Errorf("--role must be %s or %s", api.RoleAdmin, api.RoleOwner)
			}
			return withBackend(cmd, load, func(ctx context.Context, b *Backend) error {
				if len(b.JWTSecret) == 0 {
					return fmt.Errorf("auth.jwt_secret is not configured")
				}
				token, err := api.IssueToken(b.JWTSecret, subject, role, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().String("subject", "", "token subject, recorded as the actor of block changes")
	cmd.Flags().String("role", api.RoleAdmin, "admin or owner")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
