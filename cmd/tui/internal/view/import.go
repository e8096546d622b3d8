package view

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

const importTimeout = 2 * time.Minute

var formatOptions = []importer.Format{importer.FormatSplitwise, importer.FormatShares}

type FileImporter interface {
	Import(format importer.Format, r io.Reader) (*sheet.Result, error)
}

type ExpenseImporter interface {
	ImportBatch(ctx context.Context, groupID string, params []expense.CreateParams) (*expense.ImportResult, error)
	CreateBatch(ctx context.Context, groupID string, params []expense.CreateParams) ([]*expense.Expense, error)
}

type MemberRegistry interface {
	EnsureMembers(ctx context.Context, groupID, name string, userIDs []string) (*group.Group, error)
}

type BalanceInvalidator interface {
	Invalidate(ctx context.Context, groupID string)
}

type importState int

const (
	importStateFormatSelect importState = iota
	importStateFilePick
	importStateImporting
	importStateConflicts
	importStateResult
)

// ImportModel loads an expense export into the current group.
type ImportModel struct {
	session  Session
	files    FileImporter
	expenses ExpenseImporter
	groups   MemberRegistry
	balances BalanceInvalidator

	state          importState
	filePicker     filepicker.Model
	selectedFormat importer.Format
	formatCursor   int

	newParams    []expense.CreateParams
	conflicts    []expense.Conflict
	skipped      []sheet.Skipped
	conflictList list.Model
	selected     map[int]bool

	status string
	err    error
}

func newFilePicker() filepicker.Model {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".csv"}
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	return fp
}

func NewImportModel(session Session, files FileImporter, expenses ExpenseImporter, groups MemberRegistry, balances BalanceInvalidator) ImportModel {
	return ImportModel{
		session:    session,
		files:      files,
		expenses:   expenses,
		groups:     groups,
		balances:   balances,
		filePicker: newFilePicker(),
		selected:   make(map[int]bool),
	}
}

func (m ImportModel) Title() string { return "Import Expenses" }

func (m ImportModel) ShortHelp() string {
	if m.state == importStateConflicts {
		return "Space: toggle | a: all | n: none | Enter: confirm | Esc: cancel"
	}

	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return m.filePicker.Init()
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

		if m.state == importStateFormatSelect {
			return m.updateFormatSelect(msg)
		}

		if m.state == importStateConflicts {
			return m.updateConflicts(msg)
		}

	case importResultMsg:
		m.skipped = msg.skipped

		if msg.err != nil {
			m.state = importStateResult
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		if len(msg.result.Conflicts) == 0 {
			m.state = importStateResult
			m.status = fmt.Sprintf("Imported %d expenses into %s.", len(msg.result.Imported), m.session.GroupID)

			return m, nil
		}

		m.newParams = msg.result.New
		m.conflicts = msg.result.Conflicts
		m.selected = make(map[int]bool)
		m.state = importStateConflicts

		items := make([]list.Item, len(m.conflicts))
		for i, c := range m.conflicts {
			items[i] = conflictItem{conflict: c, index: i}
		}

		delegate := conflictDelegate{selected: &m.selected}
		m.conflictList = list.New(items, delegate, 80, 20)
		m.conflictList.Title = fmt.Sprintf("Possible duplicates (%d new rows will be imported)", len(m.newParams))
		m.conflictList.SetShowStatusBar(false)
		m.conflictList.SetFilteringEnabled(false)
		m.conflictList.SetShowHelp(false)

		return m, nil

	case confirmResultMsg:
		m.state = importStateResult
		if msg.err != nil {
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.status = fmt.Sprintf("Imported %d expenses into %s.", msg.count, m.session.GroupID)

		return m, nil
	}

	if m.state != importStateFilePick {
		return m, nil
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.state = importStateImporting
		m.status = fmt.Sprintf("Importing from %s...", path)

		return m, m.importCmd(path)
	}

	return m, cmd
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateFilePick:
		m.state = importStateFormatSelect
		return m, nil
	case importStateResult:
		m.state = importStateFormatSelect
		m.err = nil
		m.status = ""
		m.skipped = nil

		return m, nil
	case importStateConflicts:
		m.state = importStateFormatSelect
		m.conflicts = nil
		m.newParams = nil
		m.skipped = nil
		m.selected = make(map[int]bool)

		return m, nil
	}

	return m, Back
}

func (m ImportModel) updateFormatSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var done bool

	m.formatCursor, done = moveCursor(msg, m.formatCursor, len(formatOptions))
	if !done {
		return m, nil
	}

	m.selectedFormat = formatOptions[m.formatCursor]
	m.state = importStateFilePick

	return m, m.filePicker.Init()
}

// moveCursor handles up/down/enter on a vertical list of n options.
func moveCursor(msg tea.KeyMsg, cursor, n int) (int, bool) {
	switch msg.Type {
	case tea.KeyUp:
		if cursor > 0 {
			cursor--
		}
	case tea.KeyDown:
		if cursor < n-1 {
			cursor++
		}
	case tea.KeyEnter:
		return cursor, true
	}

	return cursor, false
}

func (m ImportModel) updateConflicts(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ":
		idx := m.conflictList.Index()
		m.selected[idx] = !m.selected[idx]

		return m, nil
	case "a":
		for i := range m.conflicts {
			m.selected[i] = true
		}

		return m, nil
	case "n":
		for i := range m.conflicts {
			m.selected[i] = false
		}

		return m, nil
	case "enter":
		return m, m.confirmCmd()
	}

	var cmd tea.Cmd
	m.conflictList, cmd = m.conflictList.Update(msg)

	return m, cmd
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateFormatSelect:
		return viewFormatSelect(m.formatCursor)
	case importStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select file to import (%s):\n\n%s", m.selectedFormat, m.filePicker.View()),
		)
	case importStateImporting:
		return lipgloss.NewStyle().Padding(2).Render(m.status)
	case importStateConflicts:
		return pageStyle.Render(m.conflictList.View())
	case importStateResult:
		return viewResult(m.status, m.err, m.skipped)
	}

	return ""
}

func viewFormatSelect(cursor int) string {
	s := "Select export format:\n\n"

	for i, f := range formatOptions {
		marker := " "
		if i == cursor {
			marker = ">"
		}

		s += fmt.Sprintf("%s %s\n", marker, string(f))
	}

	return lipgloss.NewStyle().Padding(2).Render(s)
}

func viewResult(status string, err error, skipped []sheet.Skipped) string {
	style := lipgloss.NewStyle().Padding(2)
	if err != nil {
		return style.Render(errorStyle.Render(status) + "\n\n(Esc to go back)")
	}

	var b strings.Builder

	b.WriteString(successStyle.Render(status))

	if len(skipped) > 0 {
		fmt.Fprintf(&b, "\n\n%d rows skipped:\n", len(skipped))

		for _, s := range skipped {
			b.WriteString(faintStyle.Render(fmt.Sprintf("  line %d: %s", s.Line, s.Reason)) + "\n")
		}
	}

	b.WriteString("\n\n(Esc to go back)")

	return style.Render(b.String())
}

// Messages

type importResultMsg struct {
	result  *expense.ImportResult
	skipped []sheet.Skipped
	err     error
}

type confirmResultMsg struct {
	count int
	err   error
}

func (m ImportModel) importCmd(path string) tea.Cmd {
	format := m.selectedFormat
	groupID := m.session.GroupID

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return importResultMsg{err: err}
		}
		defer f.Close()

		res, err := m.files.Import(format, f)
		if err != nil {
			return importResultMsg{err: err}
		}

		if len(res.Expenses) == 0 {
			return importResultMsg{skipped: res.Skipped, err: fmt.Errorf("no importable expenses in %s", path)}
		}

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		if _, err := m.groups.EnsureMembers(ctx, groupID, groupID, res.Members); err != nil {
			return importResultMsg{err: err}
		}

		result, err := m.expenses.ImportBatch(ctx, groupID, res.Expenses)
		if err != nil {
			return importResultMsg{err: err}
		}

		if len(result.Conflicts) == 0 {
			m.balances.Invalidate(ctx, groupID)
		}

		return importResultMsg{result: result, skipped: res.Skipped}
	}
}

func (m ImportModel) confirmCmd() tea.Cmd {
	newParams := m.newParams
	conflicts := m.conflicts
	selected := m.selected
	groupID := m.session.GroupID

	return func() tea.Msg {
		var allParams []expense.CreateParams
		allParams = append(allParams, newParams...)

		for i, c := range conflicts {
			if !selected[i] {
				continue
			}

			allParams = append(allParams, c.Incoming)
		}

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		exps, err := m.expenses.CreateBatch(ctx, groupID, allParams)
		if err != nil {
			return confirmResultMsg{err: err}
		}

		m.balances.Invalidate(ctx, groupID)

		return confirmResultMsg{count: len(exps)}
	}
}

// Conflict list item

type conflictItem struct {
	conflict expense.Conflict
	index    int
}

func (i conflictItem) Title() string       { return "" }
func (i conflictItem) Description() string { return "" }
func (i conflictItem) FilterValue() string { return "" }

// Conflict list delegate

type conflictDelegate struct {
	selected *map[int]bool
}

func (d conflictDelegate) Height() int                             { return 3 }
func (d conflictDelegate) Spacing() int                            { return 0 }
func (d conflictDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d conflictDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(conflictItem)
	if !ok {
		return
	}

	checkbox := "[ ]"
	if (*d.selected)[item.index] {
		checkbox = "[x]"
	}

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
	}

	incoming := item.conflict.Incoming
	existing := item.conflict.Existing

	line1 := fmt.Sprintf("%s%s %s  %s  %s (paid by %s)",
		cursor, checkbox,
		FormatDate(incoming.Date),
		FormatAmount(incoming.Amount),
		incoming.Description,
		incoming.PayerID,
	)

	line2 := fmt.Sprintf("      Existing: %s  %s  %s (paid by %s)",
		FormatDate(existing.Date),
		FormatAmount(existing.Amount),
		existing.Description,
		existing.PayerID,
	)

	fmt.Fprintf(w, "%s\n%s\n", line1, line2)
}
