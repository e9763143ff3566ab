package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/hospital-appointments/internal/app"
	"github.com/hackgods/hospital-appointments/internal/auth"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/db"
	"github.com/hackgods/hospital-appointments/internal/observability"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "hmsctl",
		Short:        "Operator commands for the appointment service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(appointmentsCmd())
	rootCmd.AddCommand(schedulerCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration, wires the services and hands them to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.InitLogger("hmsctl", cfg.Env)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				applied, err := db.Migrate(ctx, a.Pool)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Println("Database is up to date.")
					return nil
				}
				for _, name := range applied {
					fmt.Printf("  applied %s\n", name)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := db.LoadMigrations()
			if err != nil {
				return err
			}
			for _, m := range migrations {
				fmt.Println(m.Name)
			}
			return nil
		},
	})

	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Daily statistics snapshots",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Build and store the snapshot for a date (default yesterday)",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if date == "" {
					date = calendar.Yesterday(a.Clock)
				}
				snap, err := a.Stats.Generate(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(snap)
			})
		},
	}
	generateCmd.Flags().String("date", "", "Date to aggregate (YYYY-MM-DD)")
	cmd.AddCommand(generateCmd)

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise stored snapshots over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sum, err := a.Stats.Summary(ctx, start, end)
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
	summaryCmd.Flags().String("start", "", "First date (YYYY-MM-DD)")
	summaryCmd.Flags().String("end", "", "Last date (YYYY-MM-DD)")
	cmd.AddCommand(summaryCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			retention, _ := cmd.Flags().GetDuration("retention")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if retention <= 0 {
					retention = a.Config.StatsRetention
				}
				cutoff, n, err := a.Stats.Prune(ctx, retention)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d snapshots before %s\n", n, cutoff)
				return nil
			})
		},
	}
	pruneCmd.Flags().Duration("retention", 0, "Retention period (defaults to STATS_RETENTION)")
	cmd.AddCommand(pruneCmd)

	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Appointment maintenance",
	}

	markCmd := &cobra.Command{
		Use:   "mark-missed",
		Short: "Mark booked appointments on a date as missed (default yesterday)",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if date == "" {
					date = calendar.Yesterday(a.Clock)
				}
				n, err := a.Appointments.MarkMissedForDate(ctx, date)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d appointments on %s as missed\n", n, date)
				return nil
			})
		},
	}
	markCmd.Flags().String("date", "", "Appointment date (YYYY-MM-DD)")
	cmd.AddCommand(markCmd)

	return cmd
}

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Inspect and trigger lifecycle jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs and their schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sched, err := a.Scheduler()
				if err != nil {
					return err
				}
				for _, st := range sched.Status() {
					fmt.Printf("%-22s %s\n", st.Name, st.Schedule)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <job>",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sched, err := a.Scheduler()
				if err != nil {
					return err
				}
				res, err := sched.RunNow(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			subject, _ := cmd.Flags().GetString("id")
			department, _ := cmd.Flags().GetString("department")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			actor, err := buildActor(auth.Role(role), subject, department)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(actor, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("role", string(auth.RoleAdmin), "admin, subadmin, staff, doctor or patient")
	cmd.Flags().String("id", "", "Subject id (random when empty)")
	cmd.Flags().String("department", "", "Department id for staff and doctor tokens")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func buildActor(role auth.Role, subject, department string) (auth.Actor, error) {
	id := uuid.New()
	if subject != "" {
		parsed, err := uuid.Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("invalid --id: %w", err)
		}
		id = parsed
	}

	deptID := func() (uuid.UUID, error) {
		d, err := uuid.Parse(department)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s tokens need a valid --department", role)
		}
		return d, nil
	}

	switch role {
	case auth.RoleAdmin:
		return auth.Admin{ID: id}, nil
	case auth.RoleSubAdmin:
		return auth.SubAdmin{ID: id}, nil
	case auth.RoleStaff:
		d, err := deptID()
		if err != nil {
			return nil, err
		}
		return auth.Staff{ID: id, DepartmentID: d}, nil
	case auth.RoleDoctor:
		d, err := deptID()
		if err != nil {
			return nil, err
		}
		return auth.DoctorActor{ID: id, DepartmentID: d}, nil
	case auth.RolePatient:
		return auth.PatientActor{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}
