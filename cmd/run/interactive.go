package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/jitlink/objlink"
	"github.com/wippyai/jitlink/runtime"
	"github.com/wippyai/jitlink/wasm"
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

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	object   string
	data     []byte
	dumps    []string
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	scroll   int
	height   int
	state    modelState
}

type funcInfo struct {
	name    string
	params  []paramInfo
	results []wasm.ValType
}

type paramInfo struct {
	name    string
	valType wasm.ValType
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
	stateViewDumps
)

func newInteractiveModel(object string, data []byte) *interactiveModel {
	return &interactiveModel{
		object: object,
		data:   data,
		state:  stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	rt    *runtime.Runtime
	dumps []string
	funcs []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadObject
}

func (m *interactiveModel) loadObject() tea.Msg {
	ctx := context.Background()

	mod, err := wasm.ParseModule(m.data)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}

	var captured bytes.Buffer
	rt.AddPlugin(objlink.NewDumpPlugin(&captured))

	if err := rt.AddObject(ctx, m.object, m.data); err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, exp := range mod.Exports {
		if exp.Kind != wasm.ExportFunc {
			continue
		}
		t, ok := mod.FuncTypeAt(exp.Index)
		if !ok {
			continue
		}
		fi := funcInfo{name: exp.Name, results: t.Results}
		for i, p := range t.Params {
			fi.params = append(fi.params, paramInfo{
				name:    fmt.Sprintf("arg%d", i),
				valType: p,
			})
		}
		funcs = append(funcs, fi)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })

	dumps := strings.Split(strings.TrimRight(captured.String(), "\n"), "\n")
	return loadedMsg{rt: rt, dumps: dumps, funcs: funcs}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break // typing into an input field
			}
			if m.rt != nil {
				m.rt.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			switch m.state {
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
			case stateViewDumps:
				if m.scroll > 0 {
					m.scroll--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectFunc:
				if m.selected < len(m.funcs)-1 {
					m.selected++
				}
			case stateViewDumps:
				if m.scroll < len(m.dumps)-1 {
					m.scroll++
				}
			}

		case "d":
			if m.state == stateSelectFunc {
				m.state = stateViewDumps
				m.scroll = 0
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			case stateViewDumps:
				m.state = stateSelectFunc
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.dumps = msg.dumps
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
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

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.valType.String()
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	f := m.funcs[m.selected]
	args := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), f.params[i].valType)
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	fn, err := m.rt.Lookup(m.object, f.name)
	if err != nil {
		return callResultMsg{err: err}
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	return callResultMsg{result: formatResults(res, f.results)}
}

func convertArg(value string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.I32:
		v, err := strconv.ParseInt(value, 10, 32)
		return uint64(uint32(int32(v))), err
	case wasm.I64:
		v, err := strconv.ParseInt(value, 10, 64)
		return uint64(v), err
	case wasm.F32:
		v, err := strconv.ParseFloat(value, 32)
		return uint64(math.Float32bits(float32(v))), err
	case wasm.F64:
		v, err := strconv.ParseFloat(value, 64)
		return math.Float64bits(v), err
	}
	return 0, fmt.Errorf("unsupported parameter type %s", t)
}

func formatResults(res []uint64, types []wasm.ValType) string {
	if len(res) == 0 {
		return "ok"
	}
	parts := make([]string, len(res))
	for i, r := range res {
		if i >= len(types) {
			parts[i] = strconv.FormatUint(r, 10)
			continue
		}
		switch types[i] {
		case wasm.I32:
			parts[i] = strconv.FormatInt(int64(int32(uint32(r))), 10)
		case wasm.I64:
			parts[i] = strconv.FormatInt(int64(r), 10)
		case wasm.F32:
			parts[i] = strconv.FormatFloat(float64(math.Float32frombits(uint32(r))), 'g', -1, 32)
		case wasm.F64:
			parts[i] = strconv.FormatFloat(math.Float64frombits(r), 'g', -1, 64)
		default:
			parts[i] = strconv.FormatUint(r, 10)
		}
	}
	return strings.Join(parts, ", ")
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.rt == nil {
		return "Linking object..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Link Runner"))
	b.WriteString(" ")
	b.WriteString(m.object)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • d dumps • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.params[i].valType.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))

	case stateViewDumps:
		b.WriteString("Link graph dumps:\n\n")
		visible := m.height - 6
		if visible < 1 {
			visible = 20
		}
		end := m.scroll + visible
		if end > len(m.dumps) {
			end = len(m.dumps)
		}
		for _, line := range m.dumps[m.scroll:end] {
			if strings.HasPrefix(line, "---") {
				b.WriteString(funcStyle.Render(line))
			} else if strings.HasPrefix(line, "  section:") {
				b.WriteString(typeStyle.Render(line))
			} else {
				b.WriteString(line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f funcInfo) string {
	var params []string
	for _, p := range f.params {
		params = append(params, p.name+": "+typeStyle.Render(p.valType.String()))
	}
	result := ""
	if len(f.results) > 0 {
		result = " -> " + typeStyle.Render(f.results[0].String())
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(object string, data []byte) error {
	p := tea.NewProgram(newInteractiveModel(object, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
