package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/doctor"
	"github.com/conn-castle/service-install/internal/messages"
)

type homeSystem struct {
	execSystem
	home string
}

func (s homeSystem) HomeDir() (string, error) { return s.home, nil }

func TestDoctorUserScope(t *testing.T) {
	h := newCLIHarness(t)
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".local"), 0o755))
	h.app.system = homeSystem{home: home}

	code := h.run("doctor")
	require.Equal(t, 0, code, h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "[WARN] Backend")
	assert.Contains(t, out, "[OK]   Backend    cron is available (user scope)")
	assert.Contains(t, out, filepath.Join(home, ".local", "bin")+" (default, will be created)")
	assert.Contains(t, out, messages.DoctorSuccessSummary)
}

func TestDoctorFailsWithoutUsableLocation(t *testing.T) {
	h := newCLIHarness(t)
	h.app.system = homeSystem{home: filepath.Join(t.TempDir(), "missing", "home")}

	code := h.run("doctor")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, h.stdout.String(), "[FAIL] Location")
	assert.Contains(t, h.stdout.String(), messages.DoctorNoLocationRecommend)
	assert.Contains(t, h.stderr.String(), messages.DoctorFailureError)
}

func TestPrintResultRecommendation(t *testing.T) {
	h := newCLIHarness(t)
	h.app.printResult(h.stdout, doctor.Result{
		Status:         doctor.StatusFail,
		CheckName:      "Elevation",
		Message:        "needs root",
		Recommendation: "use sudo",
	})
	assert.Equal(t, "[FAIL] Elevation  needs root\n       hint: use sudo\n", h.stdout.String())
}
