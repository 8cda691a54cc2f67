// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSentinel/services/mailer"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

// Digest renderers. Every tool answer is markdown the model is told to relay
// verbatim, so the formats here are the user-facing formats: severity and
// category icons, per-stage checklists, and a closing "Next step" line that
// names the tool that advances the pipeline.

// severityIcon maps issue and query severity to its marker.
func severityIcon(severity string) string {
	switch severity {
	case sentinel.PriorityCritical:
		return "🔴"
	case sentinel.PriorityHigh:
		return "🟠"
	case sentinel.PriorityMedium:
		return "🟡"
	case sentinel.PriorityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

// categoryIcon maps an issue category to its marker.
func categoryIcon(category string) string {
	switch category {
	case sentinel.CategoryInventory:
		return "📦"
	case sentinel.CategoryPayments:
		return "💳"
	case sentinel.CategoryCustomers:
		return "👥"
	case sentinel.CategoryRevenue:
		return "💰"
	case sentinel.CategoryOperations:
		return "⚙️"
	case sentinel.CategoryDataQuality:
		return "📊"
	default:
		return "📋"
	}
}

// truncate cuts s to max runes-ish with an ellipsis marker.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// PlanDigest renders a query plan summary.
func PlanDigest(focusAreas []string, outcome *sentinel.PlanOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Generated %d SQL Queries**\n", len(outcome.Queries))
	fmt.Fprintf(&b, "Focus areas: %s\n\n", strings.Join(focusAreas, ", "))

	for i, q := range outcome.Queries {
		fmt.Fprintf(&b, "%d. %s **%s** (%s)\n", i+1, severityIcon(q.Priority), q.Purpose, q.Priority)
		if q.Explanation != "" {
			fmt.Fprintf(&b, "   _%s_\n", q.Explanation)
		}
		b.WriteString("\n")
	}

	if len(outcome.Dropped) > 0 {
		fmt.Fprintf(&b, "⚠️ %d planned queries were dropped by read-only validation:\n", len(outcome.Dropped))
		for _, d := range outcome.Dropped {
			fmt.Fprintf(&b, "- %s: %s\n", d.Purpose, d.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Next step:** Call `execute_queries()` to run these queries.")
	return b.String()
}

// ExecutionDigest renders query execution results. Specs pair with results
// positionally and supply the human-readable purposes.
func ExecutionDigest(specs []sentinel.QuerySpec, results []sentinel.QueryResult) string {
	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Executed %d/%d Queries Successfully**\n\n", succeeded, len(results))

	for i, r := range results {
		purpose := r.QueryID
		if i < len(specs) {
			purpose = specs[i].Purpose
		}
		if r.OK() {
			fmt.Fprintf(&b, "✅ **%s**: %d rows\n", purpose, r.RowCount)
		} else {
			fmt.Fprintf(&b, "❌ **%s**: %s\n", purpose, r.Err)
		}
	}

	b.WriteString("\n**Next step:** Call `analyze_results()` to identify business issues.")
	return b.String()
}

// IssuesDigest renders the analyzer's numbered issue list.
func IssuesDigest(issues []sentinel.Issue) string {
	if len(issues) == 0 {
		return "✅ **No significant issues found!** The business metrics look healthy."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ **Identified %d Business Issues**\n\n", len(issues))

	for _, issue := range issues {
		fmt.Fprintf(&b, "### %d. %s %s\n", issue.Number, categoryIcon(issue.Category), issue.Title)
		fmt.Fprintf(&b, "**Severity:** %s %s | **Category:** %s\n\n",
			severityIcon(issue.Severity), strings.ToUpper(issue.Severity), issue.Category)
		fmt.Fprintf(&b, "%s\n\n---\n\n", issue.Description)
	}

	b.WriteString("**Next step:** Call `propose_fix(issue_number)` to get a fix proposal.\n")
	b.WriteString("Example: `propose_fix(1)` for the first issue.")
	return b.String()
}

// IssueDetailDigest renders one issue in full.
func IssueDetailDigest(issue sentinel.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Issue #%d Details\n\n", issue.Number)
	fmt.Fprintf(&b, "### %s\n\n", issue.Title)
	fmt.Fprintf(&b, "**Severity:** %s %s\n", severityIcon(issue.Severity), strings.ToUpper(issue.Severity))
	fmt.Fprintf(&b, "**Category:** %s\n\n", issue.Category)
	fmt.Fprintf(&b, "**Description:**\n%s\n\n", issue.Description)

	if len(issue.AffectedRefs) > 0 {
		fmt.Fprintf(&b, "**Affected Records:** %s\n", strings.Join(issue.AffectedRefs, ", "))
	}
	if issue.Impact != "" {
		fmt.Fprintf(&b, "**Business Impact:** %s\n", issue.Impact)
	}

	fmt.Fprintf(&b, "\n**To fix this issue:** Call `propose_fix(%d)`", issue.Number)
	return b.String()
}

// IssueMatchesDigest renders a keyword search over the issue list. A single
// match expands to full detail; no match lists everything so the caller can
// pick a number instead.
func IssueMatchesDigest(keyword string, matches, all []sentinel.Issue) string {
	if len(matches) == 1 {
		return IssueDetailDigest(matches[0])
	}

	var b strings.Builder
	if len(matches) == 0 {
		fmt.Fprintf(&b, "❌ No issues found matching %q.\n\n", keyword)
		b.WriteString("**Available issues:**\n")
		for _, issue := range all {
			fmt.Fprintf(&b, "  %d. %s\n", issue.Number, issue.Title)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "🔍 **Found %d issues matching %q:**\n\n", len(matches), keyword)
	for _, issue := range matches {
		fmt.Fprintf(&b, "%d. %s **%s**\n", issue.Number, severityIcon(issue.Severity), issue.Title)
	}
	b.WriteString("\nCall `get_issue_details(N)` to see full details for a specific issue.")
	return b.String()
}

// ProposalDigest renders a composed fix proposal with its email previews.
func ProposalDigest(issue sentinel.Issue, outcome *sentinel.ProposalOutcome) string {
	fix := outcome.Proposal

	var b strings.Builder
	fmt.Fprintf(&b, "## 🔧 Fix Proposal for Issue #%d\n\n", issue.Number)
	fmt.Fprintf(&b, "**Issue:** %s\n\n", issue.Title)
	fmt.Fprintf(&b, "### %s\n", fix.Title)
	fmt.Fprintf(&b, "_%s_\n\n", fix.Description)

	if len(fix.Actions) > 0 {
		b.WriteString("### 📋 Automated Actions\n")
		for _, action := range fix.Actions {
			fmt.Fprintf(&b, "- %s\n", action)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Expected Outcome:** %s\n", fix.ExpectedOutcome)
	fmt.Fprintf(&b, "**Priority:** %s\n\n", strings.ToUpper(fix.Priority))

	if len(fix.Recipients) > 0 {
		fmt.Fprintf(&b, "### 👥 Recipients (%d)\n", len(fix.Recipients))
		for _, r := range fix.Recipients {
			fmt.Fprintf(&b, "- **%s** (%s)\n", r.Name, r.Role)
			fmt.Fprintf(&b, "  Email: %s | Reason: %s\n", r.Email, r.Reason)
		}
		b.WriteString("\n")
	}

	if len(outcome.Skipped) > 0 {
		fmt.Fprintf(&b, "### ⚠️ Skipped Recipients (%d)\n", len(outcome.Skipped))
		for _, s := range outcome.Skipped {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Reason)
		}
		b.WriteString("\n")
	}

	if len(outcome.Emails) > 0 {
		fmt.Fprintf(&b, "### 📧 Emails Ready to Send (%d)\n\n", len(outcome.Emails))
		for _, email := range outcome.Emails {
			fmt.Fprintf(&b, "**Email %d:** %s\n", email.Index, email.Subject)
			fmt.Fprintf(&b, "To: %s\n", email.DisplayRecipient)
			fmt.Fprintf(&b, "```\n%s\n```\n\n", email.Body)
		}
	}

	b.WriteString("---\n**Next steps:**\n")
	b.WriteString("- Call `dispatch_emails()` to send the notification emails\n")
	b.WriteString("- Call `edit_email(email_number, field, new_value)` to modify an email first\n")
	b.WriteString("- Call `propose_fix(N)` to see a different issue's fix")
	return b.String()
}

// ComposeDigest renders one on-demand draft.
func ComposeDigest(draft sentinel.EmailDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Email %d Drafted** (%s)\n\n", draft.Index, draft.Role)
	fmt.Fprintf(&b, "Subject: %s\n", draft.Subject)
	fmt.Fprintf(&b, "To: %s\n", draft.DisplayRecipient)
	fmt.Fprintf(&b, "```\n%s\n```\n\n", draft.Body)
	b.WriteString("**Next step:** Call `dispatch_emails()` to send, or `edit_email` to adjust it first.")
	return b.String()
}

// EditDigest renders the outcome of one email edit.
func EditDigest(draft sentinel.EmailDraft, field, oldValue, newValue string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Email %d Updated**\n\n", draft.Index)
	fmt.Fprintf(&b, "**Field:** %s\n", field)
	fmt.Fprintf(&b, "**Old value:** %s\n", truncate(oldValue, 100))
	fmt.Fprintf(&b, "**New value:** %s\n\n", truncate(newValue, 100))
	b.WriteString("**Updated Email Preview:**\n")
	fmt.Fprintf(&b, "Subject: %s\n", draft.Subject)
	fmt.Fprintf(&b, "To: %s\n", draft.DisplayRecipient)
	fmt.Fprintf(&b, "```\n%s\n```", truncate(draft.Body, 300))
	return b.String()
}

// DispatchDigest renders per-email dispatch results plus where the mail
// actually went.
func DispatchDigest(records []sentinel.DispatchRecord, status mailer.Status) string {
	sent, failed := 0, 0
	for _, rec := range records {
		if rec.Delivered {
			sent++
		} else {
			failed++
		}
	}

	var b strings.Builder
	b.WriteString("## 📬 Email Results\n\n")
	fmt.Fprintf(&b, "**Sent:** %d ✅\n", sent)
	if failed > 0 {
		fmt.Fprintf(&b, "**Failed:** %d ❌\n\n", failed)
	} else {
		fmt.Fprintf(&b, "**Failed:** %d\n\n", failed)
	}

	if status.Placebo {
		b.WriteString("🧪 **Placebo Mode Active**\n")
		fmt.Fprintf(&b, "All emails were sent to: `%s`\n\n", status.TransportInbox)
	} else {
		fmt.Fprintf(&b, "📧 **All emails routed to:** `%s`\n", status.TransportInbox)
		b.WriteString("Subject line includes intended recipient for tracking.\n\n")
	}

	b.WriteString("### Emails Sent:\n")
	for _, rec := range records {
		marker := "✅"
		if !rec.Delivered {
			marker = "❌"
		}
		fmt.Fprintf(&b, "%d. %s **%s**\n", rec.Index, marker, rec.Subject)
		fmt.Fprintf(&b, "   Intended for: %s\n", rec.IntendedTo)
		if rec.Err != "" {
			fmt.Fprintf(&b, "   Error: %s\n", rec.Err)
		}
	}

	if failed == 0 {
		b.WriteString("\n✅ **Fix execution complete!**")
	} else {
		b.WriteString("\n⚠️ Some emails failed; call `dispatch_emails()` again to retry the pending drafts.")
	}
	return b.String()
}

// freshStateDigest is what a session with nothing in it describes as.
const freshStateDigest = `## 📊 Current Analysis State

**Status:** No analysis in progress.

No queries have been generated or executed yet. This is a fresh session.

**To start an analysis, you can:**
- Say "Run a full business analysis" for comprehensive analysis
- Say "Check inventory issues" to focus on stock problems
- Say "Look for payment problems" to focus on transactions
- Or describe any specific business concern you have

I'll automatically generate SQL queries, execute them, and identify any issues.`

// StateDigest renders the per-stage checklist with next-step hints.
func StateDigest(snap *sentinel.StateSnapshot) string {
	st := snap.State
	if snap.Stage == sentinel.StageEmpty {
		return freshStateDigest
	}

	var b strings.Builder
	b.WriteString("## 📊 Current Analysis State\n\n")

	if len(st.Queries) > 0 {
		fmt.Fprintf(&b, "**Queries Generated:** %d ✅\n", len(st.Queries))
	} else {
		b.WriteString("**Queries Generated:** None ❌\n")
	}

	if len(st.QueryResults) > 0 {
		fmt.Fprintf(&b, "**Queries Executed:** %d results ✅\n", len(st.QueryResults))
	} else {
		b.WriteString("**Queries Executed:** Not yet ❌\n")
	}

	if st.Analyzed {
		fmt.Fprintf(&b, "**Issues Identified:** %d ✅\n", len(st.Issues))
		for _, issue := range st.Issues {
			fmt.Fprintf(&b, "  %d. [%s] %s\n", issue.Number, strings.ToUpper(issue.Severity), issue.Title)
		}
	} else {
		b.WriteString("**Issues Identified:** Not yet ❌\n")
	}

	if st.CurrentProposal != nil {
		fmt.Fprintf(&b, "**Fix Proposed:** Yes ✅ (for issue #%d)\n", st.CurrentProposal.IssueNumber)
	} else {
		b.WriteString("**Fix Proposed:** Not yet ❌\n")
	}

	if st.Dispatched {
		fmt.Fprintf(&b, "**Emails Dispatched:** %d ✅\n", len(st.LastDispatch))
	}

	if len(st.FocusAreas) > 0 {
		fmt.Fprintf(&b, "\n**Focus Areas:** %s", strings.Join(st.FocusAreas, ", "))
	} else {
		b.WriteString("\n**Focus Areas:** Not set")
	}

	b.WriteString("\n\n**Next steps:**\n")
	switch {
	case len(st.Queries) == 0:
		b.WriteString("- Generate queries with `plan_queries()`\n")
	case len(st.QueryResults) == 0:
		b.WriteString("- Execute queries with `execute_queries()`\n")
	case !st.Analyzed:
		b.WriteString("- Analyze results with `analyze_results()`\n")
	case st.CurrentProposal == nil:
		b.WriteString("- Get a fix proposal with `propose_fix(N)`\n")
	case !st.Dispatched:
		b.WriteString("- Send notifications with `dispatch_emails()`\n")
		b.WriteString("- Or start fresh with `reset_analysis()`\n")
	default:
		b.WriteString("- Start fresh with `reset_analysis()`\n")
	}

	return b.String()
}

// ResetDigest confirms a session reset.
func ResetDigest() string {
	return "🔄 **Analysis state reset!**\n\nReady to start a new analysis. You can:\n" +
		"- Call `plan_queries()` to investigate all areas\n" +
		"- Call `plan_queries(\"inventory\")` to focus on specific areas"
}
