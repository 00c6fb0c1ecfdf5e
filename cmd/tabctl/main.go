package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/handlers"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/payments"
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// globalFlags are passed through to the same parser the server uses, so the
// CLI honours the server's environment variables and .env file.
type globalFlags struct {
	databaseURL  string
	databaseType string
}

func (g globalFlags) args() []string {
	var args []string
	if g.databaseURL != "" {
		args = append(args, "-d", g.databaseURL)
	}
	if g.databaseType != "" {
		args = append(args, "-t", g.databaseType)
	}
	return args
}

// open parses configuration and connects with the schema in place
func (g globalFlags) open() (cliparse.Config, *sql.DB, error) {
	cfg, err := cliparse.ParseFlags(g.args())
	if err != nil {
		return cliparse.Config{}, nil, codeError(2, "config: %s", err)
	}
	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return cliparse.Config{}, nil, codeError(3, "database: %s", err)
	}
	if err := db.CreateSchema(conn); err != nil {
		conn.Close()
		return cliparse.Config{}, nil, codeError(3, "schema: %s", err)
	}
	return cfg, conn, nil
}

func main() {
	var global globalFlags

	root := &cobra.Command{
		Use:           "tabctl",
		Short:         "Administer a tablepay database",
		Long:          "tabctl creates staff accounts and tables, imports menus, runs cleanup and exports sales reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&global.databaseURL, "database", "d", "", "Database URL (default DATABASE_URL)")
	root.PersistentFlags().StringVarP(&global.databaseType, "db-type", "t", "", "sqlite or postgres (default DATABASE_TYPE)")

	root.AddCommand(
		migrateCmd(&global),
		staffCmd(&global),
		tablesCmd(&global),
		menuCmd(&global),
		sweepCmd(&global),
		reportCmd(&global),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func migrateCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.DatabaseType)
			return nil
		},
	}
}

func staffCmd(global *globalFlags) *cobra.Command {
	staff := &cobra.Command{Use: "staff", Short: "Manage staff accounts"}

	var req models.CreateStaffRequest
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch req.Role {
			case models.RoleAdmin, models.RoleWaiter, models.RoleKitchen:
			default:
				return codeError(2, "role must be admin, waiter or kitchen")
			}
			if len(req.Password) < 8 {
				return codeError(2, "password must be at least 8 characters")
			}

			_, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			st, err := handlers.InsertStaff(cmd.Context(), conn, req)
			if errors.Is(err, handlers.ErrStaffExists) {
				return codeError(4, "%s is already registered", req.Email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", st.Role, st.Email, st.ID)
			return nil
		},
	}
	f := add.Flags()
	f.StringVar(&req.Email, "email", "", "Login email")
	f.StringVar(&req.Name, "name", "", "Display name")
	f.StringVar(&req.Role, "role", models.RoleWaiter, "admin, waiter or kitchen")
	f.StringVar(&req.Password, "password", "", "Initial password")
	add.MarkFlagRequired("email")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("password")

	staff.AddCommand(add)
	return staff
}

func tablesCmd(global *globalFlags) *cobra.Command {
	tables := &cobra.Command{Use: "tables", Short: "Manage dining tables"}

	var seats int
	add := &cobra.Command{
		Use:   "add <label>...",
		Short: "Create tables and print their QR links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, label := range args {
				t, err := handlers.InsertTable(cmd.Context(), conn, cfg.TableCodeSalt, label, seats)
				if errors.Is(err, handlers.ErrTableExists) {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: already exists\n", label)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Label, tableLink(cfg, t.Code))
			}
			return nil
		},
	}
	add.Flags().IntVar(&seats, "seats", 4, "Seats per table")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tables with their QR links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			all, err := handlers.ListTables(cmd.Context(), conn)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tSEATS\tACTIVE\tCREATED\tLINK")
			for _, t := range all {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", t.Label, t.Seats, t.Active, humanize.Time(t.CreatedAt), tableLink(cfg, t.Code))
			}
			return tw.Flush()
		},
	}

	tables.AddCommand(add, list)
	return tables
}

func tableLink(cfg cliparse.Config, code string) string {
	return cfg.PublicBaseURL + "/t/" + code
}

func menuCmd(global *globalFlags) *cobra.Command {
	menu := &cobra.Command{Use: "menu", Short: "Manage the menu"}

	importCmd := &cobra.Command{
		Use:   "import <menu.yaml>",
		Short: "Create or update categories and items from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return codeError(2, "reading menu: %s", err)
			}
			file, err := parseMenuFile(raw)
			if err != nil {
				return codeError(2, "%s", err)
			}

			_, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			var res importResult
			err = db.WithTx(cmd.Context(), conn, func(tx *sql.Tx) error {
				res, err = importMenu(cmd.Context(), tx, file)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "categories: %d created; items: %d created, %d updated\n",
				res.categories, res.created, res.updated)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the menu including unavailable items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			categories, err := handlers.LoadMenu(cmd.Context(), conn, true)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range categories {
				fmt.Fprintf(tw, "%s\n", c.Name)
				for _, it := range c.Items {
					state := ""
					if !it.Available {
						state = "(unavailable)"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", it.Name, decimal.New(it.PriceCents, -2).StringFixed(2), state)
				}
			}
			return tw.Flush()
		},
	}

	menu.AddCommand(importCmd, show)
	return menu
}

func sweepCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup pass: expire pools, fail stale payments, close idle sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			var gateway payments.Gateway = payments.DisabledGateway{}
			if cfg.PaymentsEnabled() {
				gateway = payments.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, nil)
			}
			svc := billing.NewService(conn, gateway, billing.Options{Currency: cfg.Currency, PoolTTL: cfg.PoolTTL})
			sweeper := billing.NewSweeper(svc, billing.SweeperConfig{
				PaymentTTL:     cfg.PaymentTTL,
				SessionIdleTTL: cfg.SessionIdleTTL,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res, err := sweeper.SweepOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "expired pools: %d, failed payments: %d, recovered payments: %d, closed sessions: %d\n",
				res.ExpiredPools, res.FailedPayments, res.RecoveredPayments, res.ClosedSessions)
			return err
		},
	}
}

func reportCmd(global *globalFlags) *cobra.Command {
	var from, to, out string
	report := &cobra.Command{
		Use:   "report",
		Short: "Summarise sales for closed sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			start, end := today.AddDate(0, 0, -6), today
			var err error
			if from != "" {
				if start, err = time.Parse(time.DateOnly, from); err != nil {
					return codeError(2, "--from must be YYYY-MM-DD")
				}
			}
			if to != "" {
				if end, err = time.Parse(time.DateOnly, to); err != nil {
					return codeError(2, "--to must be YYYY-MM-DD")
				}
			}

			cfg, conn, err := global.open()
			if err != nil {
				return err
			}
			defer conn.Close()

			rep, err := handlers.BuildSalesReport(cmd.Context(), conn, cfg.Currency, start, end)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s to %s: %s sessions, %s orders\n", start.Format(time.DateOnly), end.Format(time.DateOnly),
				humanize.Comma(int64(rep.SessionCount)), humanize.Comma(int64(rep.OrderCount)))
			fmt.Fprintf(w, "gross %s %s, tips %s, refunded %s\n", formatCents(rep.GrossCents), rep.Currency,
				formatCents(rep.TipCents), formatCents(rep.RefundedCents))

			if out == "" {
				return nil
			}
			f, err := handlers.SalesWorkbook(rep)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := f.SaveAs(out); err != nil {
				return codeError(4, "writing %s: %s", out, err)
			}
			fmt.Fprintf(w, "wrote %s\n", out)
			return nil
		},
	}
	f := report.Flags()
	f.StringVar(&from, "from", "", "First day, YYYY-MM-DD (default six days ago)")
	f.StringVar(&to, "to", "", "Last day, YYYY-MM-DD (default today)")
	f.StringVar(&out, "xlsx", "", "Also write the report as an Excel workbook")
	return report
}

// formatCents renders 123456 as 1,234.56
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}
