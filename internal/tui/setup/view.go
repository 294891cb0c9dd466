package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/authcap/internal/supervisor"
	"github.com/steveyegge/authcap/internal/ui"
)

// View renders the model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("authcap setup"))
	b.WriteString("\n")

	if m.hasStatus {
		b.WriteString(panelStyle.Render(m.renderStatus()))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.message != "" && m.failed:
		b.WriteString(errorStyle.Render(m.message))
	case m.message != "":
		b.WriteString(successStyle.Render(m.message))
	case !m.hasStatus:
		b.WriteString(m.spinner.View() + " connecting...")
	default:
		b.WriteString(statusStyle.Render(m.hint()))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func (m *Model) renderStatus() string {
	st := m.status
	phase := ui.PhaseStyle(st.Phase).Render(string(st.Phase))
	if st.Running {
		phase = m.spinner.View() + " " + phase
	}

	rows := [][2]string{
		{"phase", phase},
		{"mode", string(st.Mode)},
	}
	if st.TargetIndex != nil {
		rows = append(rows, [2]string{"target", fmt.Sprintf("auth-%d", *st.TargetIndex)})
	}
	if st.RunID != "" {
		rows = append(rows, [2]string{"run", st.RunID})
	}
	if st.PID != nil {
		rows = append(rows, [2]string{"pid", fmt.Sprintf("%d", *st.PID)})
	}
	if st.StartedAt != nil {
		rows = append(rows, [2]string{"started", st.StartedAt.Local().Format(time.Kitchen)})
	}
	rows = append(rows, [2]string{"continue sent", fmt.Sprintf("%t", st.ContinueSent)})
	if st.ExitCode != nil {
		rows = append(rows, [2]string{"exit code", fmt.Sprintf("%d", *st.ExitCode)})
	}
	if st.LastAuthFile != nil {
		rows = append(rows, [2]string{"credential", *st.LastAuthFile})
	}
	if st.Error != nil {
		rows = append(rows, [2]string{"error", errorStyle.Render(*st.Error)})
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r[0])+r[1])
	}
	return strings.Join(lines, "\n")
}

func (m *Model) hint() string {
	switch {
	case m.status.Running && !m.status.ContinueSent:
		return "Log in in the browser window, then press enter to save the credential."
	case m.status.Running:
		return "Saving credential..."
	case m.status.Phase == supervisor.PhaseIdle && m.status.ExitCode != nil:
		return "Capture finished."
	default:
		return "No capture running. Start one with: authcap setup start"
	}
}
