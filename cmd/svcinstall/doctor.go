package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/doctor"
	"github.com/conn-castle/service-install/internal/messages"
)

func newDoctorCmd(a *app) *cobra.Command {
	var (
		runAs  string
		system bool
	)
	cmd := &cobra.Command{
		Use:   messages.DoctorUse,
		Short: messages.DoctorShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer(0)
			if err != nil {
				return err
			}
			scope := scopeOf(system)
			d, err := inst.Diagnose(cmd.Context(), scope, runAs)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(a.stdout, messages.DoctorHealthCheckFmt, scope)
			results := doctor.Check(d)
			for _, r := range results {
				a.printResult(a.stdout, r)
			}
			if doctor.HasFailure(results) {
				_, _ = fmt.Fprintln(a.stdout, a.palette.fail.Sprint(messages.DoctorFailureSummary))
				return errors.New(messages.DoctorFailureError)
			}
			_, _ = fmt.Fprintln(a.stdout, a.palette.ok.Sprint(messages.DoctorSuccessSummary))
			return nil
		},
	}
	cmd.Flags().StringVar(&runAs, "run-as", "", messages.FlagRunAs)
	cmd.Flags().BoolVar(&system, "system", false, messages.FlagSystem)
	return cmd
}

func (a *app) printResult(out io.Writer, r doctor.Result) {
	var status string
	switch r.Status {
	case doctor.StatusOK:
		status = a.palette.ok.Sprint(messages.DoctorStatusOKLabel)
	case doctor.StatusWarn:
		status = a.palette.warn.Sprint(messages.DoctorStatusWarnLabel)
	case doctor.StatusFail:
		status = a.palette.fail.Sprint(messages.DoctorStatusFailLabel)
	}

	_, _ = fmt.Fprintf(out, messages.DoctorResultLineFmt, status, r.CheckName, r.Message)
	if r.Recommendation != "" {
		_, _ = fmt.Fprintf(out, "%s%s\n", messages.DoctorRecommendationPrefix, r.Recommendation)
	}
}
