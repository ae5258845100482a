package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/compile"
	"github.com/mirahmed753/cretonne/stackmap"
)

// entry is one function shown in the browser.
type entry struct {
	file string
	res  compile.FuncResult
}

func (e entry) name() string { return e.res.Func.Name }

type browserModel struct {
	target   *codegen.Target
	entries  []entry
	visible  []int // indices into entries matching the filter
	selected int
	filter   textinput.Model
	detail   viewport.Model
}

func newBrowserModel(rep *report) *browserModel {
	m := &browserModel{target: rep.target}
	for _, f := range rep.files {
		for _, res := range f.funcs {
			m.entries = append(m.entries, entry{file: f.path, res: res})
		}
	}

	ti := textinput.New()
	ti.Placeholder = "filter functions"
	ti.Prompt = "/ "
	ti.Width = 40
	ti.Focus()
	m.filter = ti
	m.detail = viewport.New(80, 20)
	m.applyFilter()
	return m
}

func (m *browserModel) Init() tea.Cmd {
	return textinput.Blink
}

// applyFilter recomputes the visible entries and keeps the selection in
// range.
func (m *browserModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, e := range m.entries {
		if q == "" || strings.Contains(strings.ToLower(e.name()), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
	m.refreshDetail()
}

func (m *browserModel) current() (entry, bool) {
	if len(m.visible) == 0 {
		return entry{}, false
	}
	return m.entries[m.visible[m.selected]], true
}

func (m *browserModel) refreshDetail() {
	e, ok := m.current()
	if !ok {
		m.detail.SetContent("no matching functions")
		return
	}
	m.detail.SetContent(m.describe(e))
	m.detail.GotoTop()
}

// describe renders the detail pane: the table, the records with the
// defining instruction of each value, and the IR.
func (m *browserModel) describe(e entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n\n", funcStyle.Render("%"+e.name()), e.file)

	res := e.res
	switch {
	case res.Err != nil:
		b.WriteString(errorStyle.Render(res.Err.Error()))
		b.WriteString("\n\n")
	case res.Result != nil:
		fmt.Fprintf(&b, "Stackmap table, %d bytes of code:\n", res.Result.Size)
		if len(res.Result.Table) == 0 {
			b.WriteString("    (empty)\n")
		}
		for _, t := range res.Result.Table {
			fmt.Fprintf(&b, "    0x%04x: %s\n", t.Offset, typeStyle.Render(stackmap.FormatSlots(m.target, t.Slots)))
		}
		b.WriteString("\nSafepoints:\n")
		b.WriteString(describeRecords(res.Func, res.Result.Records))
		b.WriteString("\n")
	}
	b.WriteString(res.Func.String())
	return b.String()
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.detail.Width = msg.Width
		m.detail.Height = max(msg.Height-listHeight(len(m.visible))-6, 3)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "up":
			if m.selected > 0 {
				m.selected--
				m.refreshDetail()
			}
			return m, nil

		case "down":
			if m.selected < len(m.visible)-1 {
				m.selected++
				m.refreshDetail()
			}
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}

	prev := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != prev {
		m.applyFilter()
	}
	return m, cmd
}

// listHeight is the number of function rows shown above the detail pane.
func listHeight(n int) int { return min(n, 10) }

func (m *browserModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stackmaps"))
	fmt.Fprintf(&b, " %s, %d functions\n\n", m.target, len(m.entries))
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	start := max(0, m.selected-listHeight(len(m.visible))+1)
	end := min(len(m.visible), start+listHeight(len(m.visible)))
	for i := start; i < end; i++ {
		e := m.entries[m.visible[i]]
		line := e.name() + " " + summary(e.res)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.detail.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • pgup/pgdn scroll • type to filter • esc quit"))
	return b.String()
}

// summary is the one-line status of a function in the list.
func summary(res compile.FuncResult) string {
	switch {
	case res.Err != nil:
		return errorStyle.Render("failed")
	case res.Result == nil:
		return helpStyle.Render(fmt.Sprintf("%d blocks", len(res.Func.Layout.Blocks())))
	}
	return typeStyle.Render(fmt.Sprintf("%d stackmaps, %d bytes", len(res.Result.Table), res.Result.Size))
}

func runInteractive(rep *report) error {
	p := tea.NewProgram(newBrowserModel(rep), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
