package main

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type confirmSummary struct {
	Bucket string
	Region string
	Create bool
}

type confirmModel struct {
	summary  confirmSummary
	answered bool
	ok       bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, isKey := msg.(tea.KeyMsg)
	if !isKey {
		return m, nil
	}

	switch strings.ToLower(key.String()) {
	case "y", "enter":
		m.answered, m.ok = true, true
	case "n", "esc", "ctrl+c", "q":
		m.answered, m.ok = true, false
	default:
		return m, nil
	}
	return m, tea.Quit
}

func (m confirmModel) View() string {
	var b strings.Builder
	region := m.summary.Region
	if region == "" {
		region = "UNKNOWN!"
	}

	fmt.Fprintf(&b, "\n  Please review the following: %s\n\n", gray.Render("(pass -y next time to skip this)"))
	fmt.Fprintf(&b, "  Deploying to bucket: %s\n", cyan.Bold(true).Render(m.summary.Bucket))
	fmt.Fprintf(&b, "  In region: %s\n", yellow.Bold(true).Render(region))
	if m.summary.Create {
		fmt.Fprintf(&b, "  sitedeploy will: %s\n\n", green.Bold(true).Render("CREATE"))
	} else {
		fmt.Fprintf(&b, "  sitedeploy will: %s %s\n\n", blue.Bold(true).Render("UPDATE"),
			gray.Render("(any existing website configuration will be overwritten!)"))
	}

	if m.answered {
		answer := "no"
		if m.ok {
			answer = "yes"
		}
		fmt.Fprintf(&b, "  OK? %s\n", answer)
		return b.String()
	}
	fmt.Fprintf(&b, "  OK? %s ", gray.Render("(Y/n)"))
	return b.String()
}

// confirmDeploy shows what is about to happen and waits for a yes or no.
func confirmDeploy(in io.Reader, out io.Writer, summary confirmSummary) (bool, error) {
	p := tea.NewProgram(confirmModel{summary: summary}, tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	m := final.(confirmModel)
	return m.answered && m.ok, nil
}
