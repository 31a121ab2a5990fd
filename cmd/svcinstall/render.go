package main

import (
	"fmt"
	"strings"

	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
)

func (a *app) printWarnings(warnings []string) {
	for _, w := range warnings {
		_, _ = fmt.Fprint(a.stderr, a.palette.warn.Sprintf(messages.CLIWarningFmt, w))
	}
}

// renderPlan prints the plan steps and, when previews is set, the unified
// diffs of the registration files.
func (a *app) renderPlan(plan *install.Plan, previews bool) error {
	out := a.stdout
	header := fmt.Sprintf(messages.CLIPlanHeaderFmt, plan.ID, plan.Op, plan.Name, plan.Backend, plan.Scope)
	if _, err := fmt.Fprint(out, a.palette.header.Sprint(header)); err != nil {
		return err
	}
	if plan.Target != "" {
		if _, err := fmt.Fprintf(out, messages.CLIPlanTargetFmt, plan.Target); err != nil {
			return err
		}
	}
	if plan.Conflict.Kind != "" && plan.Conflict.Kind != install.ConflictNone {
		if _, err := fmt.Fprint(out, a.palette.warn.Sprintf(messages.CLIPlanConflictFmt, plan.Conflict.Kind)); err != nil {
			return err
		}
	}
	for i, line := range plan.Describe(install.TenseFuture) {
		if _, err := fmt.Fprintf(out, messages.CLIPlanStepFmt, i+1, line); err != nil {
			return err
		}
	}
	if !previews {
		return nil
	}
	for _, preview := range plan.Previews {
		if _, err := fmt.Fprintf(out, messages.CLIPreviewHeaderFmt, preview.Path); err != nil {
			return err
		}
		if err := a.renderDiff(preview.UnifiedDiff); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) renderDiff(diff string) error {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = a.palette.header.Sprint(line)
		case strings.HasPrefix(line, "+"):
			line = a.palette.added.Sprint(line)
		case strings.HasPrefix(line, "-"):
			line = a.palette.remove.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			line = a.palette.hunk.Sprint(line)
		}
		if _, err := fmt.Fprintln(a.stdout, line); err != nil {
			return err
		}
	}
	return nil
}

// renderReport prints what an executed plan did. Best-effort reports list
// every step with its outcome.
func (a *app) renderReport(report install.Report) error {
	if report.PlanID == "" {
		return nil
	}
	out := a.stdout
	if len(report.Outcomes) > 0 {
		for _, outcome := range report.Outcomes {
			var line string
			if outcome.Err != nil {
				line = a.palette.fail.Sprintf(messages.CLIStepFailedFmt, outcome.Step.Describe(install.TenseFuture), outcome.Err)
			} else {
				line = a.palette.ok.Sprintf(messages.CLIStepDoneFmt, outcome.Step.Describe(install.TensePast))
			}
			if _, err := fmt.Fprint(out, line); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(out, messages.CLIDoneFmt, report.Op, report.Name, len(report.Applied)); err != nil {
		return err
	}
	if report.Handle != nil {
		if _, err := fmt.Fprintf(out, messages.CLIHandleFmt, report.Handle, report.Handle.State); err != nil {
			return err
		}
	}
	return nil
}

// planJSON is the machine-readable form of a plan.
type planJSON struct {
	ID       string            `json:"id"`
	Op       string            `json:"op"`
	Name     string            `json:"name"`
	Backend  string            `json:"backend"`
	Scope    string            `json:"scope"`
	Target   string            `json:"target"`
	Conflict string            `json:"conflict"`
	Steps    []planStepJSON    `json:"steps"`
	Previews []planPreviewJSON `json:"previews,omitempty"`
}

type planStepJSON struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type planPreviewJSON struct {
	Path      string `json:"path"`
	Diff      string `json:"diff"`
	Truncated bool   `json:"truncated"`
}

func planJSONOf(plan *install.Plan) planJSON {
	out := planJSON{
		ID:       plan.ID,
		Op:       string(plan.Op),
		Name:     plan.Name,
		Backend:  plan.Backend,
		Scope:    string(plan.Scope),
		Target:   plan.Target,
		Conflict: string(plan.Conflict.Kind),
		Steps:    make([]planStepJSON, 0, len(plan.Steps)),
	}
	for _, step := range plan.Steps {
		out.Steps = append(out.Steps, planStepJSON{Kind: string(step.Kind), Description: step.Describe(install.TenseFuture)})
	}
	for _, preview := range plan.Previews {
		out.Previews = append(out.Previews, planPreviewJSON{Path: preview.Path, Diff: preview.UnifiedDiff, Truncated: preview.Truncated})
	}
	return out
}
