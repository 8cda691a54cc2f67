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
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Notification Templates
// =============================================================================
//
// Emails are rendered from operator-controlled templates, never from model
// output: the model proposes WHO to notify and WHY, the template decides
// WHAT the message says. That keeps prompt-injected content out of outbound
// mail bodies.

//go:embed templates_default.yaml
var defaultTemplatesYAML []byte

// templateRoles are the coarse roles every template set must cover.
var templateRoles = []string{RoleManagement, RoleSupplier, RoleCustomer, RoleTeam}

// TemplateParams is the typed binding rendered into a notification email.
type TemplateParams struct {
	RecipientName   string
	Store           string
	IssueTitle      string
	Severity        string
	Category        string
	Description     string
	Impact          string
	Actions         []string
	ExpectedOutcome string
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

type templateFile struct {
	Templates map[string]struct {
		Subject string `yaml:"subject"`
		Body    string `yaml:"body"`
	} `yaml:"templates"`
}

// TemplateSet holds the parsed role-keyed templates. When constructed from
// a file, Watch hot-reloads edits; a broken edit keeps the previous set.
//
// Thread Safety: safe for concurrent use.
type TemplateSet struct {
	mu        sync.RWMutex
	templates map[string]*emailTemplate
	path      string
}

// LoadTemplates parses the template set from the given YAML file, or the
// embedded defaults when path is empty.
func LoadTemplates(path string) (*TemplateSet, error) {
	raw := defaultTemplatesYAML
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading templates file: %w", err)
		}
	}
	parsed, err := parseTemplates(raw)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("parsing templates file %s: %w", path, err)
		}
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}
	return &TemplateSet{templates: parsed, path: path}, nil
}

func parseTemplates(raw []byte) (map[string]*emailTemplate, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}

	parsed := make(map[string]*emailTemplate, len(file.Templates))
	for role, entry := range file.Templates {
		canonical, ok := NormalizeRole(role)
		if !ok {
			return nil, fmt.Errorf("template role %q is not one of %s", role, strings.Join(templateRoles, ", "))
		}
		subject, err := template.New(canonical + ".subject").Parse(entry.Subject)
		if err != nil {
			return nil, fmt.Errorf("parsing %s subject template: %w", canonical, err)
		}
		body, err := template.New(canonical + ".body").Parse(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("parsing %s body template: %w", canonical, err)
		}
		parsed[canonical] = &emailTemplate{subject: subject, body: body}
	}

	var missing []string
	for _, role := range templateRoles {
		if _, ok := parsed[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("template set is missing roles: %s", strings.Join(missing, ", "))
	}
	return parsed, nil
}

// Roles returns the canonical roles in the set, sorted.
func (t *TemplateSet) Roles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	roles := make([]string, 0, len(t.templates))
	for role := range t.templates {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Render produces the subject and body for one canonical role.
//
// Inputs:
//   - role: a canonical role (pass model output through NormalizeRole first).
//   - params: the typed binding.
//
// Outputs:
//   - subject, body: rendered text.
//   - err: *UnknownRoleError for an unregistered role, or a template
//     execution error.
func (t *TemplateSet) Render(role string, params TemplateParams) (subject, body string, err error) {
	t.mu.RLock()
	tmpl, ok := t.templates[role]
	t.mu.RUnlock()
	if !ok {
		return "", "", &UnknownRoleError{Role: role}
	}

	var subjBuf, bodyBuf strings.Builder
	if err := tmpl.subject.Execute(&subjBuf, params); err != nil {
		return "", "", fmt.Errorf("rendering %s subject: %w", role, err)
	}
	if err := tmpl.body.Execute(&bodyBuf, params); err != nil {
		return "", "", fmt.Errorf("rendering %s body: %w", role, err)
	}
	return strings.TrimSpace(subjBuf.String()), strings.TrimSpace(bodyBuf.String()) + "\n", nil
}

// Watch hot-reloads the template file until the context is cancelled.
// Blocks; run it in a goroutine. A no-op when the set came from the
// embedded defaults.
func (t *TemplateSet) Watch(ctx context.Context) {
	if t.path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Template watcher unavailable, hot reload disabled",
			"error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(t.path); err != nil {
		slog.Warn("Failed to watch templates file",
			"path", t.path,
			"error", err)
		return
	}
	slog.Debug("Watching templates file", "path", t.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Template watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// reload re-parses the watched file, keeping the current set when the edit
// does not parse.
func (t *TemplateSet) reload() {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		slog.Warn("Template reload failed, keeping previous set",
			"path", t.path,
			"error", err)
		return
	}
	parsed, err := parseTemplates(raw)
	if err != nil {
		slog.Warn("Template reload failed, keeping previous set",
			"path", t.path,
			"error", err)
		return
	}

	t.mu.Lock()
	t.templates = parsed
	t.mu.Unlock()
	slog.Info("Templates reloaded", "path", t.path)
}

// NormalizeRole folds a model-produced role string onto the canonical
// template roles. Punctuation, case, and spacing are ignored, and the
// aliases seen in practice (customer_service, inventory manager,
// procurement, staff) map onto their coarse role. Returns false for a role
// with no template.
func NormalizeRole(raw string) (string, bool) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").
		Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch key {
	case "customer", "customerservice", "customercare":
		return RoleCustomer, true
	case "manager", "management", "inventorymanager", "warehousemanager", "procurement":
		return RoleManagement, true
	case "staff", "team":
		return RoleTeam, true
	case "supplier":
		return RoleSupplier, true
	default:
		return "", false
	}
}
