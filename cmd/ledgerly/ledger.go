package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/ledgerly/internal/calculator"
	"github.com/mmynk/ledgerly/internal/ledger"
	"github.com/mmynk/ledgerly/internal/models"
)

const dateLayout = "2006-01-02"

var (
	billCategory string
	billNotes    string
	billRepeat   string
	billUntil    string

	goalCategory string
	goalType     string
	goalNotes    string

	settingsIncome        string
	settingsBudget        string
	settingsNotifications bool
	settingsDarkMode      bool

	summaryMonth string
)

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// withLedger opens the client for fn. When fn changed a record and the
// session can sync, the change is pushed right away.
func withLedger(cmd *cobra.Command, fn func(svc *ledger.Service) error) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := fn(a.ledger); err != nil {
		return err
	}
	if a.mutated && a.session.SignedIn() {
		a.pushMutation(cmd.Context())
	}
	return nil
}

var billCmd = &cobra.Command{
	Use:     "bill",
	GroupID: "ledger",
	Short:   "Manage bills",
}

var billAddCmd = &cobra.Command{
	Use:   "add TITLE AMOUNT DUE_DATE",
	Short: "Add a bill",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := ledger.BillInput{
			Title:            args[0],
			Category:         billCategory,
			Notes:            billNotes,
			RecurrencePeriod: models.ParseRecurrencePeriod(billRepeat),
		}
		if billRepeat != "" && in.RecurrencePeriod == models.RecurrenceNone {
			return fmt.Errorf("invalid --repeat %q, want daily, weekly, monthly or yearly", billRepeat)
		}
		var err error
		if in.Amount, err = parseAmount(args[1]); err != nil {
			return err
		}
		if in.DueDate, err = parseDate(args[2]); err != nil {
			return err
		}
		if billUntil != "" {
			until, err := parseDate(billUntil)
			if err != nil {
				return err
			}
			in.RecurrenceEndDate = &until
		}
		return withLedger(cmd, func(svc *ledger.Service) error {
			b, err := svc.AddBill(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Println(b.ID)
			return nil
		})
	},
}

var billListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bills by due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			bills, err := svc.Bills(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAMOUNT\tDUE\tPAID\tREPEATS")
			for _, b := range bills {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					b.ID, b.Title, b.Amount.StringFixed(2), b.DueDate.Local().Format(dateLayout), b.IsPaid, b.RecurrencePeriod)
			}
			return w.Flush()
		})
	},
}

var billPayCmd = &cobra.Command{
	Use:   "pay ID",
	Short: "Mark a bill paid; recurring bills roll over to the next due date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			b, err := svc.SetBillPaid(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			if b.IsRecurring {
				if b, err = svc.RollOverBill(cmd.Context(), b.ID); err != nil {
					return err
				}
				fmt.Printf("Paid; next due %s\n", b.DueDate.Local().Format(dateLayout))
				return nil
			}
			fmt.Println("Paid")
			return nil
		})
	},
}

var billDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a bill from this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			return svc.DeleteBill(cmd.Context(), args[0])
		})
	},
}

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "ledger",
	Short:   "Manage savings goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add TITLE TARGET_AMOUNT TARGET_DATE",
	Short: "Add a savings goal",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := ledger.GoalInput{
			Title:    args[0],
			Category: goalCategory,
			GoalType: models.ParseGoalType(goalType),
			Notes:    goalNotes,
		}
		var err error
		if in.TargetAmount, err = parseAmount(args[1]); err != nil {
			return err
		}
		if in.TargetDate, err = parseDate(args[2]); err != nil {
			return err
		}
		return withLedger(cmd, func(svc *ledger.Service) error {
			g, err := svc.AddGoal(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Println(g.ID)
			return nil
		})
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List savings goals by target date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			goals, err := svc.Goals(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPROGRESS\tTARGET\tBY\tSTATUS")
			for _, g := range goals {
				status := "on track"
				switch {
				case g.IsCompleted():
					status = "completed"
				case g.IsOverdue(now):
					status = "overdue"
				}
				fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
					g.ID, g.Title, g.Progress()*100, g.TargetAmount.StringFixed(2), g.TargetDate.Local().Format(dateLayout), status)
			}
			return w.Flush()
		})
	},
}

var goalContributeCmd = &cobra.Command{
	Use:   "contribute ID AMOUNT",
	Short: "Add to a goal; a negative amount withdraws",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(svc *ledger.Service) error {
			g, err := svc.Contribute(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			fmt.Printf("%s of %s (%.0f%%)\n", g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2), g.Progress()*100)
			return nil
		})
	},
}

var goalDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a goal from this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			return svc.DeleteGoal(cmd.Context(), args[0])
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "ledger",
	Short:   "Show or change income, budget and preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(svc *ledger.Service) error {
			st, err := svc.Settings(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.NFlag() == 0 {
				printSettings(st)
				return nil
			}
			in := ledger.SettingsInput{
				MonthlyIncome:        st.MonthlyIncome,
				MonthlyBudget:        st.MonthlyBudget,
				NotificationsEnabled: st.NotificationsEnabled,
				DarkModeEnabled:      st.DarkModeEnabled,
			}
			if flags.Changed("income") {
				if in.MonthlyIncome, err = parseAmount(settingsIncome); err != nil {
					return err
				}
			}
			if flags.Changed("budget") {
				if in.MonthlyBudget, err = parseAmount(settingsBudget); err != nil {
					return err
				}
			}
			if flags.Changed("notifications") {
				in.NotificationsEnabled = settingsNotifications
			}
			if flags.Changed("dark-mode") {
				in.DarkModeEnabled = settingsDarkMode
			}
			if st, err = svc.UpdateSettings(cmd.Context(), in); err != nil {
				return err
			}
			printSettings(st)
			return nil
		})
	},
}

func printSettings(st *models.UserSettings) {
	fmt.Printf("income:        %s\n", st.MonthlyIncome.StringFixed(2))
	fmt.Printf("budget:        %s\n", st.MonthlyBudget.StringFixed(2))
	fmt.Printf("notifications: %t\n", st.NotificationsEnabled)
	fmt.Printf("dark mode:     %t\n", st.DarkModeEnabled)
}

var summaryCmd = &cobra.Command{
	Use:     "summary",
	GroupID: "ledger",
	Short:   "Show the monthly overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		month := calculator.MonthOf(now)
		if summaryMonth != "" {
			t, err := time.ParseInLocation("2006-01", summaryMonth, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --month %q, want YYYY-MM", summaryMonth)
			}
			month = calculator.MonthOf(t)
		}

		return withLedger(cmd, func(svc *ledger.Service) error {
			bills, err := svc.Bills(cmd.Context())
			if err != nil {
				return err
			}
			goals, err := svc.Goals(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := svc.Settings(cmd.Context())
			if err != nil {
				return err
			}

			s := calculator.MonthlySummary(month, bills, goals, settings, now)
			fmt.Printf("%s\n\n", s.Month)
			fmt.Printf("bills due:        %d (%s)\n", s.BillsDue, s.TotalDue.StringFixed(2))
			fmt.Printf("  paid:           %d (%s)\n", s.BillsPaid, s.TotalPaid.StringFixed(2))
			fmt.Printf("  unpaid:         %d (%s)\n", s.BillsUnpaid, s.TotalUnpaid.StringFixed(2))
			fmt.Printf("remaining budget: %s\n", s.RemainingBudget.StringFixed(2))
			fmt.Printf("after bills:      %s\n", s.Disposable.StringFixed(2))
			fmt.Printf("savings:          %s of %s (%.0f%%), %d completed, %d overdue\n",
				s.SavingsCurrent.StringFixed(2), s.SavingsTarget.StringFixed(2), s.SavingsProgress*100, s.GoalsCompleted, s.GoalsOverdue)

			if len(s.Upcoming) > 0 {
				fmt.Println("\nupcoming:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, u := range s.Upcoming {
					fmt.Fprintf(w, "  %s\t%s\t%s\n", u.DueDate.Local().Format(dateLayout), u.Title, u.Amount.StringFixed(2))
				}
				return w.Flush()
			}
			return nil
		})
	},
}

func init() {
	billAddCmd.Flags().StringVar(&billCategory, "category", "", "category (default "+models.DefaultCategory+")")
	billAddCmd.Flags().StringVar(&billNotes, "notes", "", "notes")
	billAddCmd.Flags().StringVar(&billRepeat, "repeat", "", "daily, weekly, monthly or yearly")
	billAddCmd.Flags().StringVar(&billUntil, "until", "", "last date a recurring bill is due (YYYY-MM-DD)")
	billCmd.AddCommand(billAddCmd, billListCmd, billPayCmd, billDeleteCmd)

	goalAddCmd.Flags().StringVar(&goalCategory, "category", "", "category (default "+models.DefaultCategory+")")
	goalAddCmd.Flags().StringVar(&goalType, "type", string(models.DefaultGoalType), "savings, credit_card_payoff, debt_payoff or investment")
	goalAddCmd.Flags().StringVar(&goalNotes, "notes", "", "notes")
	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalContributeCmd, goalDeleteCmd)

	settingsCmd.Flags().StringVar(&settingsIncome, "income", "", "monthly income")
	settingsCmd.Flags().StringVar(&settingsBudget, "budget", "", "monthly budget")
	settingsCmd.Flags().BoolVar(&settingsNotifications, "notifications", true, "enable notifications")
	settingsCmd.Flags().BoolVar(&settingsDarkMode, "dark-mode", false, "enable dark mode")

	summaryCmd.Flags().StringVar(&summaryMonth, "month", "", "month to summarize (YYYY-MM, default current)")

	rootCmd.AddCommand(billCmd, goalCmd, settingsCmd, summaryCmd)
}
