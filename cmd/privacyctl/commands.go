package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"compliance/internal/anonymization/bulk"
	"compliance/internal/audit"
	id "compliance/pkg/domain"
)

func (c *cli) candidatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "List subjects due for inactivity anonymization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			candidates, err := c.app.Bulk.SelectCandidates(cmd.Context(), actor)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(candidates))
			for _, cand := range candidates {
				rows = append(rows, []string{cand.SubjectID.String(), formatTime(&cand.CreatedAt), formatTime(cand.LastAccessedAt)})
			}
			return c.output(cmd.OutOrStdout(), candidates, []string{"Subject ID", "Created At", "Last Accessed"}, rows)
		},
	}
}

func (c *cli) anonymizeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "anonymize <subject-id>",
		Short: "Anonymize one subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			subjectID, err := id.ParseSubjectID(args[0])
			if err != nil {
				return fmt.Errorf("invalid subject id: %s", args[0])
			}
			result, err := c.app.Anonymizer.Anonymize(cmd.Context(), actor, subjectID, reason)
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), result,
				[]string{"Subject ID", "Success", "Anonymized At"},
				[][]string{{result.SubjectID.String(), strconv.FormatBool(result.Success), formatTime(result.AnonymizedAt)}},
			)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	_ = cmd.MarkFlagRequired("reason") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) bulkCmd() *cobra.Command {
	var (
		reason      string
		subjects    []string
		forceCancel bool
	)
	cmd := &cobra.Command{
		Use:   "bulk-anonymize",
		Short: "Anonymize every current candidate, or the given subjects",
		Long: `bulk-anonymize processes subjects one at a time and prints progress after
each item. Interrupts are ignored until the run finishes unless
--force-cancel is set, in which case the first interrupt stops the run
before the next item.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			ids, err := c.resolveSubjects(cmd.Context(), actor, subjects)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			interrupts, stop := c.signals()
			defer stop()
			go c.watchInterrupts(ctx, interrupts, forceCancel, cancel)

			out := cmd.OutOrStdout()
			result, err := c.app.Bulk.RunBulk(ctx, actor, ids, reason, func(p bulk.Progress) {
				fmt.Fprintf(out, "progress %d/%d failed=%d\n", p.Current, p.Total, p.Failed)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			rows := [][]string{{
				strconv.Itoa(result.Total),
				strconv.Itoa(result.Current),
				strconv.Itoa(result.Failed),
				strconv.FormatBool(result.Cancelled),
			}}
			if err := c.output(out, result, []string{"Total", "Processed", "Failed", "Cancelled"}, rows); err != nil {
				return err
			}
			if result.Cancelled {
				return errors.New("bulk run cancelled")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	cmd.Flags().StringSliceVar(&subjects, "subjects", nil, "Subject IDs to process instead of the current candidates")
	cmd.Flags().BoolVar(&forceCancel, "force-cancel", false, "Let an interrupt stop the run before the next item")
	_ = cmd.MarkFlagRequired("reason") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) resolveSubjects(ctx context.Context, actor id.Actor, raw []string) ([]id.SubjectID, error) {
	if len(raw) > 0 {
		ids := make([]id.SubjectID, 0, len(raw))
		for _, s := range raw {
			subjectID, err := id.ParseSubjectID(s)
			if err != nil {
				return nil, fmt.Errorf("invalid subject id: %s", s)
			}
			ids = append(ids, subjectID)
		}
		return ids, nil
	}
	candidates, err := c.app.Bulk.SelectCandidates(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]id.SubjectID, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, cand.SubjectID)
	}
	return ids, nil
}

func (c *cli) watchInterrupts(ctx context.Context, interrupts <-chan os.Signal, forceCancel bool, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-interrupts:
			if forceCancel {
				c.logger.Warn("interrupt received, stopping after the current item")
				cancel()
				return
			}
			c.logger.Warn("bulk run in progress, interrupt ignored (use --force-cancel to stop)")
		}
	}
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the tenant's compliance counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			stats, err := c.app.Dashboard.GetDashboard(cmd.Context(), actor)
			if err != nil {
				return err
			}
			rows := [][]string{
				{"access_requests", strconv.Itoa(stats.AccessRequestsCount)},
				{"pending_access_requests", strconv.Itoa(stats.PendingAccessRequests)},
				{"overdue_access_requests", strconv.Itoa(stats.OverdueAccessRequests)},
				{"active_consents", strconv.Itoa(stats.ActiveConsentsCount)},
				{"breach_incidents", strconv.Itoa(stats.BreachIncidentsCount)},
				{"audit_logs_last_30d", strconv.Itoa(stats.AuditLogsLast30d)},
			}
			return c.output(cmd.OutOrStdout(), stats, []string{"Metric", "Value"}, rows)
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	var (
		filter   audit.Filter
		action   string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the tenant's audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			filter.ActionType = audit.ActionType(action)
			if filter.From, err = parseTimeFlag("from", from); err != nil {
				return err
			}
			if filter.To, err = parseTimeFlag("to", to); err != nil {
				return err
			}
			page, err := c.app.Audit.List(cmd.Context(), actor, filter)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(page.Entries))
			for _, e := range page.Entries {
				rows = append(rows, []string{
					formatTime(&e.CreatedAt), string(e.ActionType), e.EntityName, e.RecordID, e.SubjectEmail, e.Purpose,
				})
			}
			return c.output(cmd.OutOrStdout(), page,
				[]string{"Time", "Action", "Entity", "Record", "Subject Email", "Purpose"}, rows)
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.EntityName, "entity", "", "Entity name, e.g. subjects")
	f.StringVar(&filter.SubjectEmail, "subject-email", "", "Subject email")
	f.StringVar(&action, "action", "", "Action type: access_request, consent, anonymization, rectification")
	f.StringVar(&from, "from", "", "Lower bound (RFC 3339)")
	f.StringVar(&to, "to", "", "Upper bound (RFC 3339)")
	f.IntVar(&filter.Limit, "limit", 0, "Page size")
	f.IntVar(&filter.Offset, "offset", 0, "Page offset")
	return cmd
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be RFC 3339: %s", name, raw)
	}
	return &t, nil
}
