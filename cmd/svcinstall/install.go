package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/lock"
	"github.com/conn-castle/service-install/internal/messages"
)

func newInstallCmd(a *app) *cobra.Command {
	var flags specFlags
	var diffLines int

	cmd := &cobra.Command{
		Use:   messages.InstallUse,
		Short: messages.InstallShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, warnings, err := flags.build(cmd, args)
			if err != nil {
				return err
			}
			a.printWarnings(warnings)
			inst, err := a.installer(diffLines)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return lock.With(ctx, a.lockDir, spec.Name, a.lockWait, func() error {
				plan, err := inst.PrepareInstall(ctx, spec)
				if err != nil {
					return err
				}
				if plan.Empty() {
					_, err := fmt.Fprintln(a.stdout, a.palette.ok.Sprint(spec.Name+": "+messages.InstallNothingToDo))
					return err
				}
				if err := a.renderPlan(plan, true); err != nil {
					return err
				}
				if err := a.confirmApply(len(plan.Steps), plan.Name); err != nil {
					return err
				}
				report, err := inst.Execute(ctx, plan)
				if renderErr := a.renderReport(report); renderErr != nil && err == nil {
					err = renderErr
				}
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&diffLines, "diff-lines", install.DefaultDiffMaxLines, messages.FlagDiffLines)
	cmd.Flags().BoolVarP(&a.yes, "yes", "y", false, messages.RootFlagYes)
	return cmd
}

func newPlanCmd(a *app) *cobra.Command {
	var flags specFlags
	var diffLines int
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   messages.PlanUse,
		Short: messages.PlanShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, warnings, err := flags.build(cmd, args)
			if err != nil {
				return err
			}
			a.printWarnings(warnings)
			inst, err := a.installer(diffLines)
			if err != nil {
				return err
			}
			plan, err := inst.PrepareInstall(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if outputJSON {
				encoder := json.NewEncoder(a.stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(planJSONOf(plan))
			}
			if plan.Empty() {
				_, err := fmt.Fprintln(a.stdout, spec.Name+": "+messages.InstallNothingToDo)
				return err
			}
			return a.renderPlan(plan, true)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&diffLines, "diff-lines", install.DefaultDiffMaxLines, messages.FlagDiffLines)
	cmd.Flags().BoolVar(&outputJSON, "json", false, messages.FlagJSON)
	return cmd
}
