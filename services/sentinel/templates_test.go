// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplatesCoverAllRoles(t *testing.T) {
	set, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}
	got := set.Roles()
	want := []string{RoleCustomer, RoleManagement, RoleSupplier, RoleTeam}
	if len(got) != len(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("roles[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderManagementTemplate(t *testing.T) {
	set, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	subject, body, err := set.Render(RoleManagement, TemplateParams{
		RecipientName:   "Alex Morgan",
		Store:           "Misty Jazz Records",
		IssueTitle:      "Albums out of stock",
		Severity:        PriorityCritical,
		Category:        CategoryInventory,
		Description:     "12 titles have zero quantity on hand.",
		Impact:          "Lost sales on best sellers.",
		Actions:         []string{"Create purchase orders", "Flag listings as backordered"},
		ExpectedOutcome: "Stock restored within two weeks.",
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	if want := "Action required: Albums out of stock"; subject != want {
		t.Errorf("subject = %q, want %q", subject, want)
	}
	for _, want := range []string{
		"Dear Alex Morgan,",
		"critical severity inventory issue",
		"12 titles have zero quantity on hand.",
		"Potential impact: Lost sales on best sellers.",
		"- Create purchase orders",
		"- Flag listings as backordered",
		"Expected outcome: Stock restored within two weeks.",
		"Misty Jazz Records Operations",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	set, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	_, body, err := set.Render(RoleManagement, TemplateParams{
		RecipientName: "Alex",
		Store:         "Shop",
		IssueTitle:    "Minor drift",
		Severity:      PriorityLow,
		Category:      CategoryDataQuality,
		Description:   "Two rows disagree.",
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	for _, banned := range []string{"Potential impact:", "Proposed remediation steps:", "Expected outcome:"} {
		if strings.Contains(body, banned) {
			t.Errorf("body contains empty section header %q:\n%s", banned, body)
		}
	}
}

func TestRenderUnknownRole(t *testing.T) {
	set, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	_, _, err = set.Render("wizard", TemplateParams{})
	var roleErr *UnknownRoleError
	if !errors.As(err, &roleErr) {
		t.Fatalf("error = %v, want *UnknownRoleError", err)
	}
	if roleErr.Role != "wizard" {
		t.Errorf("role in error = %q, want %q", roleErr.Role, "wizard")
	}
}

func TestLoadTemplatesRejectsMissingRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `
templates:
  management:
    subject: "s"
    body: "b"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing templates file: %v", err)
	}

	_, err := LoadTemplates(path)
	if err == nil {
		t.Fatal("incomplete template set accepted")
	}
	for _, role := range []string{RoleSupplier, RoleCustomer, RoleTeam} {
		if !strings.Contains(err.Error(), role) {
			t.Errorf("error %v does not name missing role %q", err, role)
		}
	}
}

func TestLoadTemplatesRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `
templates:
  wizard:
    subject: "s"
    body: "b"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing templates file: %v", err)
	}

	if _, err := LoadTemplates(path); err == nil || !strings.Contains(err.Error(), "wizard") {
		t.Errorf("error = %v, want rejection naming the unknown role", err)
	}
}

func TestTemplateReloadKeepsOldSetOnBadEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	good := `
templates:
  management: { subject: "m {{.IssueTitle}}", body: "mb" }
  supplier: { subject: "s", body: "sb" }
  customer: { subject: "c", body: "cb" }
  team: { subject: "t", body: "tb" }
`
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatalf("writing templates file: %v", err)
	}
	set, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	if err := os.WriteFile(path, []byte("templates: {broken"), 0o600); err != nil {
		t.Fatalf("rewriting templates file: %v", err)
	}
	set.reload()

	subject, _, err := set.Render(RoleManagement, TemplateParams{IssueTitle: "X"})
	if err != nil {
		t.Fatalf("Render after bad reload error: %v", err)
	}
	if subject != "m X" {
		t.Errorf("subject = %q, want the pre-edit template output", subject)
	}
}

func TestTemplateReloadPicksUpGoodEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	v1 := `
templates:
  management: { subject: "v1", body: "b" }
  supplier: { subject: "s", body: "b" }
  customer: { subject: "c", body: "b" }
  team: { subject: "t", body: "b" }
`
	if err := os.WriteFile(path, []byte(v1), 0o600); err != nil {
		t.Fatalf("writing templates file: %v", err)
	}
	set, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	v2 := strings.Replace(v1, `subject: "v1"`, `subject: "v2"`, 1)
	if err := os.WriteFile(path, []byte(v2), 0o600); err != nil {
		t.Fatalf("rewriting templates file: %v", err)
	}
	set.reload()

	subject, _, err := set.Render(RoleManagement, TemplateParams{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if subject != "v2" {
		t.Errorf("subject = %q, want %q after reload", subject, "v2")
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"customer", RoleCustomer, true},
		{"Customer Service", RoleCustomer, true},
		{"customer_care", RoleCustomer, true},
		{"manager", RoleManagement, true},
		{"MANAGEMENT", RoleManagement, true},
		{"inventory-manager", RoleManagement, true},
		{"warehouse_manager", RoleManagement, true},
		{"procurement", RoleManagement, true},
		{"staff", RoleTeam, true},
		{"team", RoleTeam, true},
		{"supplier", RoleSupplier, true},
		{" Supplier ", RoleSupplier, true},
		{"wizard", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeRole(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeRole(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
