package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"parking-finder-cli/model"
)

const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLng = 111.320
	// terminal cells are roughly twice as tall as they are wide
	cellAspect = 2.0
)

type cellKind int

const (
	cellEmpty cellKind = iota
	cellOrigin
	cellFree
	cellFull
	cellHighlight
	cellPin
)

type mapCell struct {
	ch   rune
	kind cellKind
}

type mapMarker struct {
	id    int
	label string
	pos   model.Coordinates
	full  bool
}

// mapView is a character grid centered on a coordinate, spanning spanKM from
// the center to the left and right edges.
type mapView struct {
	center      model.Coordinates
	spanKM      float64
	cols        int
	rows        int
	originGlyph rune
	highlighted int
}

func lotMarkers(lots []model.ParkingLot) []mapMarker {
	markers := make([]mapMarker, 0, len(lots))
	for _, lot := range lots {
		markers = append(markers, mapMarker{
			id:    lot.Id,
			label: fmt.Sprintf("%d", lot.Available),
			pos:   lot.Position(),
			full:  lot.Available == 0,
		})
	}
	return markers
}

// project returns the grid cell for pos, or ok=false when it falls outside.
func (v mapView) project(pos model.Coordinates) (col int, row int, ok bool) {
	if v.cols <= 0 || v.rows <= 0 || v.spanKM <= 0 {
		return 0, 0, false
	}
	dxKM := (pos.Longitude - v.center.Longitude) * kmPerDegreeLng * math.Cos(v.center.Latitude*math.Pi/180)
	dyKM := (pos.Latitude - v.center.Latitude) * kmPerDegreeLat

	kmPerCol := v.spanKM / float64(v.cols/2)
	kmPerRow := kmPerCol * cellAspect

	col = v.cols/2 + int(math.Round(dxKM/kmPerCol))
	row = v.rows/2 - int(math.Round(dyKM/kmPerRow))
	if col < 0 || row < 0 || col >= v.cols || row >= v.rows {
		return col, row, false
	}
	return col, row, true
}

func (v mapView) grid(markers []mapMarker) ([][]mapCell, int) {
	grid := make([][]mapCell, v.rows)
	for r := range grid {
		grid[r] = make([]mapCell, v.cols)
		for c := range grid[r] {
			grid[r][c] = mapCell{ch: '·', kind: cellEmpty}
		}
	}

	hidden := 0
	place := func(m mapMarker) {
		col, row, ok := v.project(m.pos)
		if !ok {
			hidden++
			return
		}
		label := []rune("[" + m.label + "]")
		start := col - len(label)/2
		start = max(0, min(start, v.cols-len(label)))
		kind := cellFree
		if m.full {
			kind = cellFull
		}
		if m.id == v.highlighted {
			kind = cellHighlight
		}
		for i, ch := range label {
			c := start + i
			if c < 0 || c >= v.cols {
				continue
			}
			grid[row][c] = mapCell{ch: ch, kind: kind}
		}
	}

	// highlighted marker is drawn last so it is never covered
	var highlighted *mapMarker
	for i := range markers {
		if markers[i].id == v.highlighted {
			highlighted = &markers[i]
			continue
		}
		place(markers[i])
	}
	if highlighted != nil {
		place(*highlighted)
	}

	if v.originGlyph != 0 {
		kind := cellOrigin
		if v.originGlyph == '+' {
			kind = cellPin
		}
		grid[v.rows/2][v.cols/2] = mapCell{ch: v.originGlyph, kind: kind}
	}
	return grid, hidden
}

func (v mapView) render(markers []mapMarker) string {
	if v.cols < 8 || v.rows < 4 {
		return "Map needs a larger window."
	}
	grid, hidden := v.grid(markers)

	styles := map[cellKind]lipgloss.Style{
		cellEmpty:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		cellOrigin:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true),
		cellFree:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		cellFull:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		cellHighlight: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Bold(true),
		cellPin:       lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true),
	}

	var b strings.Builder
	for r, line := range grid {
		// group runs of the same kind so each run is styled once
		start := 0
		for c := 1; c <= len(line); c++ {
			if c < len(line) && line[c].kind == line[start].kind {
				continue
			}
			run := make([]rune, 0, c-start)
			for _, cell := range line[start:c] {
				run = append(run, cell.ch)
			}
			b.WriteString(styles[line[start].kind].Render(string(run)))
			start = c
		}
		if r < len(grid)-1 {
			b.WriteString("\n")
		}
	}

	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63"))
	footer := fmt.Sprintf("%.1f km to each side", v.spanKM)
	if hidden > 0 {
		footer += fmt.Sprintf(" • %d outside view", hidden)
	}
	return border.Render(b.String()) + "\n" + hint(footer)
}

// movePin shifts pos by the given distances in km, keeping it on the globe.
func movePin(pos model.Coordinates, eastKM float64, northKM float64) model.Coordinates {
	pos.Latitude += northKM / kmPerDegreeLat
	pos.Latitude = math.Max(-90, math.Min(90, pos.Latitude))

	cos := math.Cos(pos.Latitude * math.Pi / 180)
	if cos > 1e-6 {
		pos.Longitude += eastKM / (kmPerDegreeLng * cos)
	}
	for pos.Longitude > 180 {
		pos.Longitude -= 360
	}
	for pos.Longitude < -180 {
		pos.Longitude += 360
	}
	return pos
}
