package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/conn-castle/service-install/internal/messages"
)

var runFormFunc = func(form *huh.Form) error { return form.Run() }

// confirmKeyMap makes Esc abort alongside Ctrl+C.
func confirmKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "cancel"),
	)
	return km
}

// confirmHuh renders a yes/no form on stderr. Aborting the form answers no.
func confirmHuh(title string) (bool, error) {
	var answer bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&answer),
	)).
		WithKeyMap(confirmKeyMap()).
		WithProgramOptions(tea.WithOutput(os.Stderr))

	err := runFormFunc(form)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer, nil
}

// confirmApply asks before a plan changes the system. --yes skips the
// question; without a terminal the run is refused.
func (a *app) confirmApply(steps int, name string) error {
	if a.yes {
		return nil
	}
	if !a.interactive() {
		return errors.New(messages.CLIConfirmNeedsTTY)
	}
	ok, err := a.confirm(fmt.Sprintf(messages.CLIConfirmApplyFmt, steps, name))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(messages.CLIAborted)
	}
	return nil
}
