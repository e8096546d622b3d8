package view

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

const simulationGroup = "simulation"

type Simulator interface {
	Simulate(groupID string, expenses []*expense.Expense) (*balance.Snapshot, error)
}

type simulateState int

const (
	simulateStateFormatSelect simulateState = iota
	simulateStateFilePick
	simulateStateResult
)

// SimulateModel runs balances and the payment plan over an export file
// without writing anything.
type SimulateModel struct {
	files     FileImporter
	simulator Simulator

	state          simulateState
	filePicker     filepicker.Model
	selectedFormat importer.Format
	formatCursor   int

	path    string
	snap    *balance.Snapshot
	skipped []sheet.Skipped
	plan    table.Model
	err     error
}

func NewSimulateModel(files FileImporter, simulator Simulator) SimulateModel {
	plan := newTable([]table.Column{
		{Title: "From", Width: 16},
		{Title: "To", Width: 16},
		{Title: "Amount", Width: 12},
	}, 12)

	return SimulateModel{
		files:      files,
		simulator:  simulator,
		filePicker: newFilePicker(),
		plan:       plan,
	}
}

func (m SimulateModel) Title() string { return "Simulate Settlement" }

func (m SimulateModel) ShortHelp() string { return "Esc: back | Enter: select" }

func (m SimulateModel) Init() tea.Cmd {
	return m.filePicker.Init()
}

func (m SimulateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			switch m.state {
			case simulateStateFilePick:
				m.state = simulateStateFormatSelect
				return m, nil
			case simulateStateResult:
				m.state = simulateStateFilePick
				m.snap, m.err, m.skipped = nil, nil, nil

				return m, m.filePicker.Init()
			}

			return m, Back
		}

		if m.state == simulateStateFormatSelect {
			var done bool

			m.formatCursor, done = moveCursor(msg, m.formatCursor, len(formatOptions))
			if done {
				m.selectedFormat = formatOptions[m.formatCursor]
				m.state = simulateStateFilePick

				return m, m.filePicker.Init()
			}

			return m, nil
		}

		if m.state == simulateStateResult {
			var cmd tea.Cmd
			m.plan, cmd = m.plan.Update(msg)

			return m, cmd
		}

	case simulatedMsg:
		m.state = simulateStateResult
		m.snap = msg.snap
		m.skipped = msg.skipped
		m.err = msg.err

		if msg.err == nil {
			rows := make([]table.Row, 0, len(msg.snap.Plan.Suggestions))
			for _, s := range msg.snap.Plan.Suggestions {
				rows = append(rows, table.Row{s.From, s.To, FormatAmount(s.Amount)})
			}

			m.plan.SetRows(rows)
		}

		return m, nil
	}

	if m.state != simulateStateFilePick {
		return m, nil
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.path = path
		return m, m.simulateCmd(path)
	}

	return m, cmd
}

func (m SimulateModel) View() string {
	switch m.state {
	case simulateStateFormatSelect:
		return viewFormatSelect(m.formatCursor)
	case simulateStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select file to simulate (%s):\n\n%s", m.selectedFormat, m.filePicker.View()),
		)
	case simulateStateResult:
		if m.err != nil {
			return viewResult(fmt.Sprintf("Error: %v", m.err), m.err, nil)
		}

		plan := m.snap.Plan
		header := fmt.Sprintf("%s: %s payments settle everyone, %d without simplifying (%d%% fewer)",
			m.path,
			activeStyle(fmt.Sprint(len(plan.Suggestions))),
			plan.PairwiseCount,
			plan.Reduction,
		)

		content := lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().PaddingBottom(1).Render(header),
			boxed(m.plan.View()),
		)

		if len(m.skipped) > 0 {
			content += "\n" + faintStyle.Render(fmt.Sprintf("%d rows skipped", len(m.skipped)))
		}

		return pageStyle.Render(content)
	}

	return ""
}

// Messages

type simulatedMsg struct {
	snap    *balance.Snapshot
	skipped []sheet.Skipped
	err     error
}

func (m SimulateModel) simulateCmd(path string) tea.Cmd {
	format := m.selectedFormat

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return simulatedMsg{err: err}
		}
		defer f.Close()

		res, err := m.files.Import(format, f)
		if err != nil {
			return simulatedMsg{err: err}
		}

		exps, err := expense.FromParams(simulationGroup, res.Expenses)
		if err != nil {
			return simulatedMsg{err: err}
		}

		snap, err := m.simulator.Simulate(simulationGroup, exps)

		return simulatedMsg{snap: snap, skipped: res.Skipped, err: err}
	}
}
