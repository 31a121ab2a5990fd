package install

import (
	"errors"

	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
)

// Prompter asks the operator about decisions the overwrite policy leaves open.
type Prompter interface {
	// ConfirmStopProcess asks whether a process running the install target
	// may be stopped so the install can proceed.
	ConfirmStopProcess(p procs.Process) (bool, error)
}

// PromptConfirmStopFunc confirms stopping a running process.
type PromptConfirmStopFunc func(p procs.Process) (bool, error)

// PromptFuncs adapts optional prompt callbacks into a Prompter.
type PromptFuncs struct {
	ConfirmStopProcessFunc PromptConfirmStopFunc
}

// ConfirmStopProcess calls ConfirmStopProcessFunc.
// Returns an error if no ConfirmStopProcessFunc is configured.
func (p PromptFuncs) ConfirmStopProcess(proc procs.Process) (bool, error) {
	if p.ConfirmStopProcessFunc == nil {
		return false, errors.New(messages.InstallStopPromptRequired)
	}
	return p.ConfirmStopProcessFunc(proc)
}
