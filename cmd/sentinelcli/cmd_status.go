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
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and mailer configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := newAPIClient(serverBaseURL())
			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			status, err := client.MailerStatus(ctx)
			if err != nil {
				return err
			}

			fmt.Println(titleStyle().Render("Aleutian Sentinel"))
			fmt.Printf("%s %s\n", headingStyle().Render("Server:"), serverBaseURL())
			fmt.Printf("%s %s\n", headingStyle().Render("Status:"), okStyle().Render(health.Status))
			fmt.Printf("%s %s\n", headingStyle().Render("Store:"), health.Store)
			fmt.Println()
			fmt.Println(headingStyle().Render("Mail dispatch"))
			fmt.Printf("  Configured: %s\n", yesNo(status.Configured))
			fmt.Printf("  Mode:       %s\n", dispatchMode(*status))
			if status.TransportInbox != "" {
				fmt.Printf("  Inbox:      %s\n", status.TransportInbox)
			}
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return okStyle().Render("yes")
	}
	return errStyle().Render("no")
}

func dispatchMode(status mailerStatus) string {
	switch {
	case !status.Configured:
		return errStyle().Render("disabled")
	case status.Placebo:
		return warnStyle().Render("placebo (mail rerouted to the safe inbox)")
	default:
		return okStyle().Render("live")
	}
}
