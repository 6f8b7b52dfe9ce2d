package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
	"timeoff-scheduler-backend/internal/syncer"
	"timeoff-scheduler-backend/internal/timeoff"
)

func monthCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "month YYYY-MM",
		Short: "Show availability for every day of a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parse.ParseMonth(args[0])
			if err != nil {
				return err
			}
			view, err := app.coordinator.Navigate(cmd.Context(), m.Year, m.Month, model.Role(role))
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", m, err)
			}
			printMonth(view)
			return nil
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", string(model.RoleAll), "Role filter: caregiver, office or all")
	return cmd
}

func dateCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "date YYYY-MM-DD",
		Short: "Show the requests and capacity of one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := showDate(cmd.Context(), args[0], model.Role(role))
			if err != nil {
				return err
			}
			printDetail(view.Detail)
			return nil
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", string(model.RoleAll), "Role filter: caregiver, office or all")
	return cmd
}

func submitCmd() *cobra.Command {
	var in timeoff.SubmitInput
	var role, kind, key string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a time-off request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = model.Role(role)
			in.Kind = model.RequestKind(kind)

			var created *timeoff.RequestView
			mutate := func(ctx context.Context) error {
				var err error
				created, key, err = app.client.Submit(ctx, in, key)
				return err
			}
			if err := mutateOnDate(cmd.Context(), in.Date, in.Role, mutate); err != nil {
				return err
			}
			fmt.Printf("Submitted request %s for %s (idempotency key %s)\n", created.ID, created.Date, key)
			printDetail(app.coordinator.View().Detail)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.RequesterName, "name", "", "Requester name")
	cmd.Flags().StringVar(&in.Date, "date", "", "Date off, YYYY-MM-DD")
	cmd.Flags().StringVar(&role, "role", "", "Role: caregiver, office or all")
	cmd.Flags().StringVar(&kind, "kind", "", "Request kind (default regular)")
	cmd.Flags().StringVar(&in.Reason, "reason", "", "Optional reason")
	cmd.Flags().StringVar(&in.DeletionSecret, "secret", "", "Secret needed to delete the request later")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Reuse a key to retry a submission safely")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func approveCmd() *cobra.Command {
	return decisionCmd("approve", "Approve a pending request", (*syncer.Client).Approve)
}

func rejectCmd() *cobra.Command {
	return decisionCmd("reject", "Reject a pending request", (*syncer.Client).Reject)
}

type decideFunc func(c *syncer.Client, ctx context.Context, id string) (*timeoff.RequestView, error)

func decisionCmd(use, short string, decide decideFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := decide(app.client, cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to %s %s: %w", use, args[0], err)
			}
			fmt.Printf("Request %s is now %s\n", r.ID, r.Status)

			view, err := showDate(cmd.Context(), r.Date, r.Role)
			if err != nil {
				return err
			}
			printDetail(view.Detail)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a request with its secret, or as admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.client.Delete(cmd.Context(), args[0], secret); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			fmt.Printf("Deleted request %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Deletion secret chosen at submission")
	return cmd
}

func setLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-limit YYYY-MM-DD ROLE MAX",
		Short: "Set the headcount limit of a role on a date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAllowed, err := parse.ParseMaxAllowed(args[2])
			if err != nil {
				return err
			}
			date, role := args[0], model.Role(args[1])

			var limit *model.CapacityLimit
			mutate := func(ctx context.Context) error {
				limit, err = app.client.SetLimit(ctx, date, role, maxAllowed)
				return err
			}
			if err := mutateOnDate(cmd.Context(), date, role, mutate); err != nil {
				return err
			}
			fmt.Printf("Limit for %s on %s is now %d\n", limit.Role, limit.Date, limit.MaxAllowed)
			printDetail(app.coordinator.View().Detail)
			return nil
		},
	}
}

// showDate navigates to date's month and selects it.
func showDate(ctx context.Context, date string, role model.Role) (syncer.View, error) {
	m, ok := parse.MonthOf(date)
	if !ok {
		return syncer.View{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	if _, err := app.coordinator.Navigate(ctx, m.Year, m.Month, role); err != nil {
		return syncer.View{}, fmt.Errorf("failed to load %s: %w", m, err)
	}
	view, err := app.coordinator.SelectDate(ctx, date)
	if err != nil {
		return syncer.View{}, fmt.Errorf("failed to load %s: %w", date, err)
	}
	return view, nil
}

// mutateOnDate selects date, runs fn and reconciles the view afterwards.
func mutateOnDate(ctx context.Context, date string, role model.Role, fn func(ctx context.Context) error) error {
	if _, err := showDate(ctx, date, role); err != nil {
		return err
	}
	if _, err := app.coordinator.Mutate(ctx, fn); err != nil {
		return err
	}
	return nil
}

func printMonth(view syncer.View) {
	fmt.Printf("%s (%s)\n\n", view.Month, view.Role)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOFF\tLIMIT\tSTATUS\tPENDING\tAPPROVED")
	for _, d := range view.Days {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%d\n", d.Date, d.EffectiveCount, d.EffectiveLimit, d.Status, d.Pending, d.Approved)
	}
	w.Flush()
}

func printDetail(detail *timeoff.DateDetail) {
	if detail == nil {
		return
	}
	a := detail.Availability
	fmt.Printf("\n%s (%s): %d of %d off, %s\n\n", detail.Date, detail.Role, a.EffectiveCount, a.EffectiveLimit, a.Status)
	if len(detail.Requests) == 0 {
		fmt.Println("No requests.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tKIND\tSTATUS\tREASON")
	for _, r := range detail.Requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.RequesterName, r.Role, r.Kind, r.Status, r.Reason)
	}
	w.Flush()
}
