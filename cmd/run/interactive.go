package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasi-host/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateEdit modelState = iota
	stateRunning
	stateShowResult
)

// Input fields, in tab order.
const (
	fieldArgv = iota
	fieldEnv
	fieldStdin
)

type interactiveModel struct {
	err      error
	ctx      context.Context
	module   *runtime.Module
	result   *runtime.Result
	base     runtime.Config
	filename string
	imports  []runtime.ImportStatus
	inputs   []textinput.Model
	focusIdx int
	state    modelState
}

type runResultMsg struct {
	err    error
	result *runtime.Result
}

func newInteractiveModel(ctx context.Context, mod *runtime.Module, base runtime.Config, filename string) *interactiveModel {
	m := &interactiveModel{
		ctx:      ctx,
		module:   mod,
		base:     base,
		filename: filename,
		imports:  mod.Imports(),
		state:    stateEdit,
	}

	fields := []struct {
		prompt, placeholder, value string
	}{
		fieldArgv:  {"argv: ", "prog,arg1,arg2", strings.Join(base.Args, ",")},
		fieldEnv:   {"env: ", "KEY=VAL,KEY2=VAL2", strings.Join(base.Env, ",")},
		fieldStdin: {"stdin: ", "text", base.Stdin},
	}
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = f.prompt
		ti.Placeholder = f.placeholder
		ti.Width = 48
		ti.SetValue(f.value)
		if i == 0 {
			ti.Focus()
		}
		m.inputs = append(m.inputs, ti)
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateShowResult {
				return m, tea.Quit
			}

		case "tab", "down":
			if m.state == stateEdit {
				m.focus((m.focusIdx + 1) % len(m.inputs))
				return m, nil
			}

		case "shift+tab", "up":
			if m.state == stateEdit {
				m.focus((m.focusIdx + len(m.inputs) - 1) % len(m.inputs))
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateEdit:
				m.state = stateRunning
				return m, m.runSession
			case stateShowResult:
				m.state = stateEdit
				m.result = nil
				m.err = nil
				return m, nil
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateEdit
				m.result = nil
				m.err = nil
				return m, nil
			}
			if m.state == stateEdit {
				return m, tea.Quit
			}
		}

	case runResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateEdit {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) focus(idx int) {
	m.inputs[m.focusIdx].Blur()
	m.focusIdx = idx
	m.inputs[m.focusIdx].Focus()
}

// sessionConfig applies the edited fields to the base configuration.
func (m *interactiveModel) sessionConfig() runtime.Config {
	cfg := m.base
	cfg.Args = splitList(m.inputs[fieldArgv].Value())
	cfg.Env = splitList(m.inputs[fieldEnv].Value())
	cfg.Stdin = m.inputs[fieldStdin].Value()
	cfg.StdinReader = nil
	cfg.Stdout = nil
	cfg.Stderr = nil
	return cfg
}

func (m *interactiveModel) runSession() tea.Msg {
	res, err := m.module.Run(m.ctx, m.sessionConfig())
	return runResultMsg{result: res, err: err}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASI Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateEdit:
		b.WriteString("Imports:\n")
		for _, imp := range m.imports {
			b.WriteString("  ")
			b.WriteString(m.formatImport(imp))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc quit"))

	case stateRunning:
		b.WriteString("Running...\n")

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		} else {
			style := resultStyle
			if m.result.Trap != nil {
				style = errorStyle
			}
			b.WriteString(style.Render(m.result.String()))
			b.WriteString("\n")
			if len(m.result.Stdout) > 0 {
				fmt.Fprintf(&b, "\n--- stdout ---\n%s", m.result.Stdout)
			}
			if len(m.result.Stderr) > 0 {
				fmt.Fprintf(&b, "\n--- stderr ---\n%s", m.result.Stderr)
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter edit • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatImport(imp runtime.ImportStatus) string {
	name := imp.Module + "." + imp.Name
	sig := typeStyle.Render(imp.Signature)
	switch {
	case !imp.Resolved:
		return errorStyle.Render(name) + " " + sig + " " + errorStyle.Render(imp.Reason)
	case !imp.Implemented:
		return funcStyle.Render(name) + " " + sig + " " + helpStyle.Render("(ENOSYS)")
	default:
		return funcStyle.Render(name) + " " + sig
	}
}

func runInteractive(ctx context.Context, mod *runtime.Module, base runtime.Config, filename string) error {
	p := tea.NewProgram(newInteractiveModel(ctx, mod, base, filename), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
