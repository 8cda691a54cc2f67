// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newInvestigateCmd() *cobra.Command {
	var (
		focusAreas   []string
		proposeIssue int
		dispatch     bool
		yes          bool
		sessionID    string
	)

	cmd := &cobra.Command{
		Use:   "investigate",
		Short: "Run a full investigation: plan, execute, analyze, and optionally propose a fix",
		Long: strings.TrimSpace(`
Runs the investigation pipeline server-side and prints the report. With
--propose N a fix is composed for issue N; with --dispatch its
notification emails are sent after confirmation.
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dispatch && proposeIssue == 0 {
				return fmt.Errorf("--dispatch needs --propose to select the issue to fix")
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			client := newAPIClient(serverBaseURL())
			ctx := cmd.Context()

			done := make(chan bool)
			go showSpinner("Investigating", done)
			report, err := client.Investigate(ctx, sessionID, focusAreas, proposeIssue)
			done <- true
			fmt.Print("\r\033[K")

			if report != nil {
				printReport(report)
			}
			if err != nil {
				return err
			}

			if dispatch && report.Proposal != nil && len(report.Proposal.Emails) > 0 {
				return runDispatch(ctx, client, sessionID, len(report.Proposal.Emails), yes)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&focusAreas, "focus", nil,
		"Focus areas to investigate (inventory, payments, customers, revenue, operations, data_quality)")
	cmd.Flags().IntVar(&proposeIssue, "propose", 0, "Compose a fix proposal for the given issue number")
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "Send the proposal's notification emails after confirmation")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the dispatch confirmation prompt")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session UUID to run in (default: a new session)")
	return cmd
}

// runDispatch confirms and sends the pending drafts. Without a terminal
// the confirmation cannot be asked, so --yes is required.
func runDispatch(ctx context.Context, client *apiClient, sessionID string, draftCount int, yes bool) error {
	if !yes {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("refusing to dispatch without confirmation; pass --yes in non-interactive runs")
		}
		status, err := client.MailerStatus(ctx)
		if err != nil {
			return err
		}
		confirmed := false
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Send %d notification email(s)?", draftCount)).
			Description(dispatchMode(*status)).
			Affirmative("Send").
			Negative("Cancel").
			Value(&confirmed)
		if err := prompt.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println(mutedStyle().Render("Dispatch cancelled; drafts remain pending."))
			return nil
		}
	}

	result, err := client.Dispatch(ctx, sessionID)
	if err != nil {
		return err
	}
	printDispatch(result)
	return nil
}

func printReport(report *investigationReport) {
	fmt.Println(titleStyle().Render("Investigation Report"))
	fmt.Println(mutedStyle().Render("session " + report.SessionID))
	fmt.Println()

	if report.Plan != nil {
		fmt.Println(headingStyle().Render(fmt.Sprintf("Plan (%d queries)", len(report.Plan.Queries))))
		for _, q := range report.Plan.Queries {
			fmt.Printf("  %s [%s] %s\n", q.ID, q.Priority, q.Purpose)
		}
		for _, d := range report.Plan.Dropped {
			fmt.Println(warnStyle().Render(fmt.Sprintf("  dropped: %s (%s)", d.Purpose, d.Reason)))
		}
		fmt.Println()
	}

	if len(report.Results) > 0 {
		succeeded := 0
		for _, r := range report.Results {
			if r.Err == "" {
				succeeded++
			}
		}
		fmt.Println(headingStyle().Render(fmt.Sprintf("Execution (%d/%d succeeded)", succeeded, len(report.Results))))
		for _, r := range report.Results {
			if r.Err != "" {
				fmt.Println(errStyle().Render(fmt.Sprintf("  %s failed: %s", r.QueryID, r.Err)))
				continue
			}
			fmt.Printf("  %s: %d rows\n", r.QueryID, r.RowCount)
		}
		fmt.Println()
	}

	if report.Stage == "analyzed" || report.Stage == "proposed" || report.Stage == "dispatched" {
		if len(report.Issues) == 0 {
			fmt.Println(okStyle().Render("No issues found. The store's data looks healthy."))
		} else {
			fmt.Println(headingStyle().Render(fmt.Sprintf("Issues (%d)", len(report.Issues))))
			for _, issue := range report.Issues {
				fmt.Printf("  #%d [%s/%s] %s\n", issue.Number,
					severityRender(issue.Severity), issue.Category, issue.Title)
				fmt.Println(mutedStyle().Render("      " + issue.Description))
			}
		}
		fmt.Println()
	}

	if report.Proposal != nil {
		p := report.Proposal.Proposal
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", titleStyle().Render("Fix: "+p.Title))
		fmt.Fprintf(&b, "%s\n\n", p.Description)
		for i, action := range p.Actions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, action)
		}
		if p.ExpectedOutcome != "" {
			fmt.Fprintf(&b, "\nExpected outcome: %s\n", p.ExpectedOutcome)
		}
		fmt.Fprintf(&b, "\n%s", headingStyle().Render(fmt.Sprintf("Drafted emails (%d)", len(report.Proposal.Emails))))
		for _, draft := range report.Proposal.Emails {
			fmt.Fprintf(&b, "\n  %d. %s <%s> — %s", draft.Index, draft.RecipientName, draft.DisplayRecipient, draft.Subject)
		}
		fmt.Println(boxStyle().Render(b.String()))
		fmt.Println()
	}
}

func printDispatch(result *dispatchResponse) {
	fmt.Println(headingStyle().Render(fmt.Sprintf("Dispatch: %d sent, %d failed", result.Sent, result.Failed)))
	for _, rec := range result.Records {
		if !rec.Delivered {
			fmt.Println(errStyle().Render(fmt.Sprintf("  %d. %s failed: %s", rec.Index, rec.IntendedTo, rec.Err)))
			continue
		}
		line := fmt.Sprintf("  %d. %s — %s", rec.Index, rec.IntendedTo, rec.Subject)
		if rec.TransportTo != rec.IntendedTo {
			line += mutedStyle().Render(" (rerouted to " + rec.TransportTo + ")")
		}
		fmt.Println(line)
	}
	if result.Mailer.Placebo {
		fmt.Println(warnStyle().Render("Placebo mode: no external email was sent."))
	}
	if result.Failed > 0 {
		fmt.Println(mutedStyle().Render("Run the dispatch again to retry the pending drafts."))
	}
}

func severityRender(severity string) string {
	switch severity {
	case "critical":
		return errStyle().Render(severity)
	case "high":
		return warnStyle().Render(severity)
	default:
		return severity
	}
}

// showSpinner animates until done receives. Suppressed on plain output.
func showSpinner(msg string, done chan bool) {
	if plainOutput() {
		<-done
		return
	}
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0
	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")
	for {
		select {
		case <-done:
			return
		default:
			fmt.Printf("\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}
