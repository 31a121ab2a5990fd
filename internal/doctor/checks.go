// Package doctor turns an install diagnosis into pass/warn/fail results.
package doctor

import (
	"fmt"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
)

// Status is the outcome of a single check.
type Status string

// Check outcomes.
const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is one line of doctor output.
type Result struct {
	Status         Status
	CheckName      string
	Message        string
	Recommendation string
}

// Check runs every check against d.
func Check(d install.Diagnosis) []Result {
	var results []Result
	results = append(results, CheckBackends(d)...)
	results = append(results, CheckLocations(d)...)
	results = append(results, CheckElevation(d))
	return results
}

// CheckBackends reports each backend. One unreachable backend is a warning;
// none reachable is a failure.
func CheckBackends(d install.Diagnosis) []Result {
	results := make([]Result, 0, len(d.Backends))
	reachable := 0
	for _, probe := range d.Backends {
		if probe.Err == nil {
			reachable++
			results = append(results, Result{
				Status:    StatusOK,
				CheckName: messages.DoctorCheckNameBackend,
				Message:   fmt.Sprintf(messages.DoctorBackendAvailableFmt, probe.Name, d.Scope),
			})
			continue
		}
		results = append(results, Result{
			Status:    StatusWarn,
			CheckName: messages.DoctorCheckNameBackend,
			Message:   fmt.Sprintf(messages.DoctorBackendUnavailableFmt, probe.Name, d.Scope, probe.Err),
		})
	}
	if reachable == 0 {
		for i := range results {
			results[i].Status = StatusFail
		}
		recommend := messages.DoctorNoBackendRecommend
		if d.Scope == backend.ScopeUser {
			recommend = messages.DoctorNoUserBackendRecommend
		}
		if len(results) > 0 {
			results[len(results)-1].Recommendation = recommend
		}
	}
	return results
}

// CheckLocations reports the default install directories in preference
// order. The first usable one is where an install without --target-dir lands.
func CheckLocations(d install.Diagnosis) []Result {
	results := make([]Result, 0, len(d.Locations))
	chosen := false
	for _, probe := range d.Locations {
		switch {
		case probe.Err != nil:
			results = append(results, Result{
				Status:    StatusWarn,
				CheckName: messages.DoctorCheckNameLocation,
				Message:   fmt.Sprintf(messages.DoctorLocationUnusableFmt, probe.Dir, probe.Err),
			})
		case chosen:
			results = append(results, Result{
				Status:    StatusOK,
				CheckName: messages.DoctorCheckNameLocation,
				Message:   fmt.Sprintf(messages.DoctorLocationUsableFmt, probe.Dir),
			})
		default:
			chosen = true
			format := messages.DoctorLocationDefaultFmt
			if probe.Create {
				format = messages.DoctorLocationDefaultCreateFmt
			}
			results = append(results, Result{
				Status:    StatusOK,
				CheckName: messages.DoctorCheckNameLocation,
				Message:   fmt.Sprintf(format, probe.Dir),
			})
		}
	}
	if !chosen {
		for i := range results {
			results[i].Status = StatusFail
		}
		if len(results) > 0 {
			results[len(results)-1].Recommendation = messages.DoctorNoLocationRecommend
		}
	}
	return results
}

// CheckElevation reports whether the scope needs privileges the process lacks.
func CheckElevation(d install.Diagnosis) Result {
	if d.Elevation != nil {
		return Result{
			Status:         StatusFail,
			CheckName:      messages.DoctorCheckNameElevation,
			Message:        d.Elevation.Error(),
			Recommendation: messages.DoctorElevationRecommend,
		}
	}
	return Result{
		Status:    StatusOK,
		CheckName: messages.DoctorCheckNameElevation,
		Message:   fmt.Sprintf(messages.DoctorElevationOKFmt, d.Scope),
	}
}

// HasFailure reports whether any result failed.
func HasFailure(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}
