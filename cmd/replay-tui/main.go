package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/globe-replay/pkg/config"
	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/feeds"
	"github.com/unklstewy/globe-replay/pkg/replay"
)

// Map viewport dimensions
const (
	mapWidth  = 80
	mapHeight = 28
)

var appVersion = "dev"

type model struct {
	cfg    *config.Config
	engine *replay.Engine

	frame  replay.Frame
	status replay.Status

	// Map view: centered on the filter reference (or the first aircraft
	// seen), spanning viewRadius nautical miles.
	center     coordinates.Geographic
	hasCenter  bool
	viewRadius float64

	selected   int
	importPath string
	exportPath string
	inputMode  string // "import", "export", or ""
	inputBuf   string
	notice     string
	err        error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Path entry for import/export
		if m.inputMode != "" {
			switch msg.String() {
			case "enter":
				path := strings.TrimSpace(m.inputBuf)
				if m.inputMode == "import" && path != "" {
					if err := m.engine.ImportReplayFile(path); err != nil {
						m.err = fmt.Errorf("import rejected: %w", err)
					} else {
						m.importPath = path
						m.notice = fmt.Sprintf("Imported %s", path)
					}
				} else if m.inputMode == "export" && path != "" {
					if err := m.engine.ExportFile(path, appVersion, ""); err != nil {
						m.err = fmt.Errorf("export failed: %w", err)
					} else {
						m.exportPath = path
						m.notice = fmt.Sprintf("Exported to %s", path)
					}
				}
				m.inputMode = ""
				m.inputBuf = ""
			case "esc":
				m.inputMode = ""
				m.inputBuf = ""
			case "backspace":
				if len(m.inputBuf) > 0 {
					m.inputBuf = m.inputBuf[:len(m.inputBuf)-1]
				}
			default:
				if len(msg.String()) == 1 {
					m.inputBuf += msg.String()
				}
			}
			return m, nil
		}

		if m.err != nil {
			m.err = nil
			return m, nil
		}
		m.notice = ""

		switch msg.String() {
		case "ctrl+c", "q":
			m.engine.Close()
			return m, tea.Quit
		case " ":
			if m.status.IsPlaying {
				m.engine.Pause()
			} else {
				m.engine.Play()
			}
		case "l":
			m.engine.GoLive()
		case "left", "h":
			m.engine.StepBackward()
		case "right":
			m.engine.StepForward()
		case "home":
			m.engine.SeekTo(0)
		case "end":
			m.engine.SeekTo(m.status.BufferLen - 1)
		case "1":
			m.engine.SetSpeed(1)
		case "2":
			m.engine.SetSpeed(2)
		case "4":
			m.engine.SetSpeed(4)
		case "5":
			m.engine.SetSpeed(0.5)
		case "x":
			m.engine.ClearImported()
		case "c":
			m.engine.ClearRecording()
		case "i":
			m.inputMode = "import"
			m.inputBuf = m.importPath
		case "e":
			m.inputMode = "export"
			m.inputBuf = m.exportPath
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			m.selected++
		case "+", "=":
			if m.viewRadius > 25 {
				m.viewRadius /= 1.5
			}
		case "-", "_":
			if m.viewRadius < 2500 {
				m.viewRadius *= 1.5
			}
		}

	case tickMsg:
		m.frame = m.engine.Resolve()
		m.status = m.engine.Status()
		m.updateCenter()
		if n := len(m.frame.Current); m.selected >= n && n > 0 {
			m.selected = n - 1
		}
		return m, tick()
	}

	return m, nil
}

// updateCenter anchors the map on the filter reference, falling back to the
// first aircraft seen so an unfiltered view still frames something.
func (m *model) updateCenter() {
	if m.hasCenter {
		return
	}
	if m.cfg.Filter.Enabled {
		m.center = coordinates.Geographic{
			Latitude:  m.cfg.Filter.Latitude,
			Longitude: m.cfg.Filter.Longitude,
		}
		m.hasCenter = true
		return
	}
	for _, st := range m.frame.Current {
		m.center = st.Position
		m.hasCenter = true
		return
	}
}

// sortedIDs returns the current entity ids sorted for a stable list.
func (m model) sortedIDs() []string {
	ids := make([]string, 0, len(m.frame.Current))
	for id := range m.frame.Current {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// blended returns the display position for an entity, interpolated between
// the frame's previous and current states.
func (m model) blended(id string) coordinates.Geographic {
	cur := m.frame.Current[id]
	prev, ok := m.frame.Previous[id]
	if !ok || m.frame.UpdateInterval <= 0 {
		return cur.Position
	}

	span := cur.Timestamp.Sub(prev.Timestamp)
	if span <= 0 {
		return cur.Position
	}
	t := float64(m.frame.EffectiveTime.Sub(prev.Timestamp)) / float64(span)
	t = math.Max(0, math.Min(1, t))

	return coordinates.Geographic{
		Latitude:  prev.Position.Latitude + (cur.Position.Latitude-prev.Position.Latitude)*t,
		Longitude: prev.Position.Longitude + (cur.Position.Longitude-prev.Position.Longitude)*t,
		Altitude:  prev.Position.Altitude + (cur.Position.Altitude-prev.Position.Altitude)*t,
	}
}

// geoToScreen projects a position onto the map grid. Returns false when the
// position falls outside the viewport.
func (m model) geoToScreen(pos coordinates.Geographic) (int, int, bool) {
	// Local flat projection: 1 degree of latitude is 60 NM, longitude
	// shrinks with cos(latitude).
	dy := (pos.Latitude - m.center.Latitude) * 60
	dx := (pos.Longitude - m.center.Longitude) * 60 *
		math.Cos(m.center.Latitude*math.Pi/180)

	x := mapWidth/2 + int(dx/m.viewRadius*float64(mapWidth/2))
	y := mapHeight/2 - int(dy/m.viewRadius*float64(mapHeight/2))
	if x < 0 || x >= mapWidth || y < 0 || y >= mapHeight {
		return 0, 0, false
	}
	return x, y, true
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	title := fmt.Sprintf("GLOBE REPLAY — %s", strings.ToUpper(m.status.Mode))
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	if m.inputMode != "" {
		promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
		inputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
		helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

		prompt := "Export replay to file:"
		if m.inputMode == "import" {
			prompt = "Import replay from file:"
		}
		s.WriteString(promptStyle.Render(prompt))
		s.WriteString("\n")
		s.WriteString(inputStyle.Render("> " + m.inputBuf + "_"))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("ENTER: Submit  ESC: Cancel"))
		return s.String()
	}

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		s.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
		helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
		s.WriteString(helpStyle.Render("Press any key to continue..."))
		return s.String()
	}

	s.WriteString(m.renderMap())
	s.WriteString("\n")
	s.WriteString(m.renderTimeline())
	s.WriteString("\n")
	s.WriteString(m.renderEntityList())
	s.WriteString("\n")

	if m.notice != "" {
		noticeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
		s.WriteString(noticeStyle.Render(m.notice))
		s.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	s.WriteString(helpStyle.Render(
		"SPACE: Play/Pause  ←/→: Step  L: Live  1/2/4/5: Speed  I: Import  E: Export  C: Clear  +/-: Zoom  Q: Quit"))
	s.WriteString("\n")

	return s.String()
}

// renderMap draws the plan view with interpolated aircraft positions.
func (m model) renderMap() string {
	grid := make([][]rune, mapHeight)
	for i := range grid {
		grid[i] = make([]rune, mapWidth)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	// Center marker
	grid[mapHeight/2][mapWidth/2] = '+'

	ids := m.sortedIDs()
	for i, id := range ids {
		pos := m.blended(id)
		x, y, ok := m.geoToScreen(pos)
		if !ok {
			continue
		}
		symbol := '○'
		if i == m.selected {
			symbol = '●'
		}
		grid[y][x] = symbol
	}

	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	var sb strings.Builder
	sb.WriteString(borderStyle.Render("┌" + strings.Repeat("─", mapWidth) + "┐"))
	sb.WriteString("\n")
	for _, row := range grid {
		sb.WriteString(borderStyle.Render("│"))
		sb.WriteString(string(row))
		sb.WriteString(borderStyle.Render("│"))
		sb.WriteString("\n")
	}
	sb.WriteString(borderStyle.Render("└" + strings.Repeat("─", mapWidth) + "┘"))
	return sb.String()
}

// renderTimeline draws the scrub bar with the playback position marker.
func (m model) renderTimeline() string {
	barWidth := mapWidth
	bar := make([]rune, barWidth)
	for i := range bar {
		bar[i] = '─'
	}

	if m.status.BufferLen > 1 && m.status.TotalSeconds > 0 {
		frac := m.status.CurrentSeconds / m.status.TotalSeconds
		pos := int(frac * float64(barWidth-1))
		if pos < 0 {
			pos = 0
		}
		if pos >= barWidth {
			pos = barWidth - 1
		}
		bar[pos] = '●'
	}

	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	current := time.Duration(m.status.CurrentSeconds * float64(time.Second)).Round(time.Second)
	total := time.Duration(m.status.TotalSeconds * float64(time.Second)).Round(time.Second)

	state := "PAUSED"
	if m.status.IsPlaying {
		state = fmt.Sprintf("PLAYING %.1fx", m.status.Speed)
	}
	if m.status.Mode == "live" {
		state = "LIVE"
	}

	info := fmt.Sprintf("%s  %v / %v  snapshot %d/%d  rec:%v",
		state, current, total, m.status.Index+1, m.status.BufferLen, m.status.Recording)

	return barStyle.Render(string(bar)) + "\n" + infoStyle.Render(info)
}

// renderEntityList shows the nearest entities with their blended state.
func (m model) renderEntityList() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %9s %10s %8s %6s %6s",
		"ID", "LAT", "LON", "ALT", "GS", "HDG")))
	sb.WriteString("\n")

	ids := m.sortedIDs()
	const maxRows = 8
	start := 0
	if m.selected >= maxRows {
		start = m.selected - maxRows + 1
	}
	for i := start; i < len(ids) && i < start+maxRows; i++ {
		st := m.frame.Current[ids[i]]
		pos := m.blended(ids[i])
		line := fmt.Sprintf("%-10s %9.4f %10.4f %8.0f %6.0f %6.0f",
			st.ID, pos.Latitude, pos.Longitude, pos.Altitude, st.GroundSpeed, st.Heading)
		if i == m.selected {
			sb.WriteString(selStyle.Render("▶ " + line))
		} else {
			sb.WriteString(rowStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}
	if len(ids) == 0 {
		sb.WriteString(rowStyle.Render("  (no entities)"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	importFile := flag.String("import", "", "Replay file to import at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := replay.Options{
		SamplingInterval: time.Duration(cfg.Engine.SamplingIntervalMs) * time.Millisecond,
		HistoryMinutes:   cfg.Engine.HistoryMinutes,
	}
	if cfg.Feeds.Poll.Enabled {
		pollFeed := feeds.NewPollFeed(cfg.Feeds.Poll.URL, feeds.DefaultPollInterval)
		go pollFeed.Run(ctx)
		opts.Poll = pollFeed
	}
	if cfg.Feeds.Push.Enabled {
		pushFeed := feeds.NewPushFeed(cfg.Feeds.Push.URL)
		go pushFeed.Run(ctx)
		opts.Push = pushFeed
	}
	if cfg.Feeds.SBS.Enabled {
		sbsFeed := feeds.NewSBSFeed(cfg.Feeds.SBS.URL)
		go sbsFeed.Run(ctx)
		opts.Exclusive = sbsFeed
	}

	engine := replay.NewEngine(opts)
	if cfg.Feeds.UseSBS {
		engine.SelectExclusiveFeed(true)
	}
	if cfg.Filter.Enabled {
		engine.SetSpatialFilter(coordinates.Geographic{
			Latitude:  cfg.Filter.Latitude,
			Longitude: cfg.Filter.Longitude,
		}, cfg.Filter.RadiusNM)
	}

	if *importFile != "" {
		if err := engine.ImportReplayFile(*importFile); err != nil {
			log.Fatalf("Failed to import replay: %v", err)
		}
	}

	// Recording loop in the background while the TUI runs.
	go func() {
		ticker := time.NewTicker(opts.SamplingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.RecordFused()
			}
		}
	}()

	viewRadius := 250.0
	if cfg.Filter.Enabled && cfg.Filter.RadiusNM > 0 {
		viewRadius = cfg.Filter.RadiusNM
	}

	m := model{
		cfg:        cfg,
		engine:     engine,
		status:     engine.Status(),
		viewRadius: viewRadius,
		exportPath: fmt.Sprintf("replay-%s.json", time.Now().Format("20060102-150405")),
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
}
