package backend

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/schedule"
)

const (
	serviceSuffix = ".service"
	timerSuffix   = ".timer"
)

func serviceUnitName(name string) string { return name + serviceSuffix }
func timerUnitName(name string) string   { return name + timerSuffix }

// renderServiceUnit renders the .service unit for d. The [Install] section is
// only emitted for on-boot services; timed services are pulled in by their
// timer and a schedule of "none" leaves nothing to enable.
func renderServiceUnit(d Descriptor) string {
	var b strings.Builder
	b.WriteString(Marker(d.Name) + "\n")
	b.WriteString("[Unit]\n")
	b.WriteString("Description=" + oneLine(d.description()) + "\n")
	b.WriteString("After=network.target\n")
	b.WriteString("\n[Service]\n")
	if d.Schedule.IsTimed() {
		b.WriteString("Type=oneshot\n")
	} else {
		b.WriteString("Type=simple\n")
	}
	if d.RunAs != "" && d.Scope == ScopeSystem {
		b.WriteString("User=" + d.RunAs + "\n")
	}
	if d.WorkingDir != "" {
		b.WriteString("WorkingDirectory=" + systemdQuote(d.WorkingDir) + "\n")
	}
	keys := make([]string, 0, len(d.Environment))
	for key := range d.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString("Environment=" + systemdQuote(key+"="+d.Environment[key]) + "\n")
	}
	words := make([]string, 0, len(d.Args)+1)
	words = append(words, systemdQuote(d.ExecPath))
	for _, arg := range d.Args {
		words = append(words, systemdQuote(arg))
	}
	b.WriteString("ExecStart=" + strings.Join(words, " ") + "\n")
	if d.Schedule.Kind == schedule.KindOnBoot {
		b.WriteString("\n[Install]\n")
		b.WriteString("WantedBy=" + bootTarget(d.Scope) + "\n")
	}
	return b.String()
}

// renderTimerUnit renders the .timer unit for a timed schedule.
func renderTimerUnit(d Descriptor, fields schedule.TimerFields) string {
	var b strings.Builder
	b.WriteString(Marker(d.Name) + "\n")
	b.WriteString("[Unit]\n")
	b.WriteString("Description=" + oneLine("timer for "+d.Name) + "\n")
	b.WriteString("\n[Timer]\n")
	if fields.OnCalendar != "" {
		b.WriteString("OnCalendar=" + fields.OnCalendar + "\n")
	}
	if fields.OnBootSec != "" {
		b.WriteString("OnBootSec=" + fields.OnBootSec + "\n")
	}
	if fields.OnUnitActiveSec != "" {
		b.WriteString("OnUnitActiveSec=" + fields.OnUnitActiveSec + "\n")
	}
	if fields.AccuracySec != "" {
		b.WriteString("AccuracySec=" + fields.AccuracySec + "\n")
	}
	if fields.Persistent {
		b.WriteString("Persistent=true\n")
	}
	b.WriteString("Unit=" + serviceUnitName(d.Name) + "\n")
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=timers.target\n")
	return b.String()
}

func bootTarget(scope Scope) string {
	if scope == ScopeSystem {
		return "multi-user.target"
	}
	return "default.target"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// renderSystemd turns d into the unit files it needs under unitDir.
func renderSystemd(d Descriptor, unitDir string) (Registration, error) {
	if err := validateDescriptor(d); err != nil {
		return Registration{}, err
	}
	fields, timed, err := schedule.Systemd(d.Schedule)
	if err != nil {
		return Registration{}, fmt.Errorf(messages.InstallScheduleUnsupportedFmt, NameSystemd, d.Schedule, err)
	}
	reg := Registration{
		Backend:  NameSystemd,
		Name:     d.Name,
		Primary:  serviceUnitName(d.Name),
		ExecPath: d.ExecPath,
		Artifacts: []Artifact{{
			Path:    filepath.Join(unitDir, serviceUnitName(d.Name)),
			Content: renderServiceUnit(d),
		}},
		Enableable: d.Schedule.Kind == schedule.KindOnBoot,
	}
	if timed {
		reg.Primary = timerUnitName(d.Name)
		reg.Enableable = true
		reg.Artifacts = append(reg.Artifacts, Artifact{
			Path:    filepath.Join(unitDir, timerUnitName(d.Name)),
			Content: renderTimerUnit(d, fields),
		})
	}
	return reg, nil
}

// unitFile is the subset of a parsed unit file the backend cares about.
type unitFile struct {
	marker     string
	execStart  []string
	hasInstall bool
}

// parseUnit extracts the marker, ExecStart words and presence of an [Install]
// section. It is a line scanner, not a full unit parser: continuation lines
// are joined, everything else is ignored.
func parseUnit(content string) (unitFile, error) {
	var (
		unit    unitFile
		section string
		pending string
	)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		if pending != "" {
			line = pending + strings.TrimSpace(line)
			pending = ""
		}
		if strings.HasSuffix(line, `\`) {
			pending = strings.TrimSuffix(line, `\`) + " "
			continue
		}
		trimmed := strings.TrimSpace(line)
		if name, ok := markerName(trimmed); ok && unit.marker == "" {
			unit.marker = name
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = trimmed
			if section == "[Install]" {
				unit.hasInstall = true
			}
			continue
		}
		if section != "[Service]" {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok || strings.TrimSpace(key) != "ExecStart" {
			continue
		}
		words, err := systemdSplit(value)
		if err != nil {
			return unitFile{}, err
		}
		unit.execStart = words
	}
	return unit, nil
}

// execPath returns the executable the unit runs.
func (u unitFile) execPath() string {
	if len(u.execStart) == 0 {
		return ""
	}
	return u.execStart[0]
}
