package tui

import (
	"math"
	"strings"
	"testing"

	"parking-finder-cli/model"
)

func TestMapView_ProjectsAroundCenter(t *testing.T) {
	v := mapView{center: model.Coordinates{Latitude: 0, Longitude: 0}, spanKM: 10, cols: 40, rows: 20}

	col, row, ok := v.project(v.center)
	if !ok || col != 20 || row != 10 {
		t.Fatalf("expected center cell (20,10), got (%d,%d) ok=%v", col, row, ok)
	}

	east := movePin(v.center, 5, 0)
	col, row, ok = v.project(east)
	if !ok || col != 30 || row != 10 {
		t.Fatalf("expected east point at (30,10), got (%d,%d) ok=%v", col, row, ok)
	}

	north := movePin(v.center, 0, 5)
	_, row, ok = v.project(north)
	if !ok || row >= 10 {
		t.Fatalf("expected north point above center, got row %d ok=%v", row, ok)
	}

	if _, _, ok := v.project(movePin(v.center, 50, 0)); ok {
		t.Fatal("expected distant point outside the view")
	}
}

func TestMapView_MarkersLabeledWithAvailable(t *testing.T) {
	v := mapView{center: model.Coordinates{}, spanKM: 10, cols: 40, rows: 20, originGlyph: '@', highlighted: -1}
	lots := []model.ParkingLot{
		{Id: 1, Name: "East", Latitude: 0, Longitude: 0.03, Capacity: 10, Available: 7},
		{Id: 2, Name: "Far", Latitude: 5, Longitude: 5, Capacity: 10, Available: 1},
	}

	grid, hidden := v.grid(lotMarkers(lots))
	if hidden != 1 {
		t.Fatalf("expected one marker outside the view, got %d", hidden)
	}
	var rows []string
	for _, line := range grid {
		var b strings.Builder
		for _, cell := range line {
			b.WriteRune(cell.ch)
		}
		rows = append(rows, b.String())
	}
	joined := strings.Join(rows, "\n")
	if !strings.Contains(joined, "[7]") {
		t.Fatalf("expected marker labeled with available count, got\n%s", joined)
	}
	if grid[10][20].ch != '@' {
		t.Fatalf("expected origin glyph at center, got %q", grid[10][20].ch)
	}
}

func TestMapView_HighlightDrawnOnTop(t *testing.T) {
	v := mapView{center: model.Coordinates{}, spanKM: 10, cols: 40, rows: 20, highlighted: 1}
	lots := []model.ParkingLot{
		{Id: 1, Latitude: 0, Longitude: 0.05, Capacity: 10, Available: 4},
		{Id: 2, Latitude: 0, Longitude: 0.05, Capacity: 10, Available: 0},
	}
	grid, _ := v.grid(lotMarkers(lots))
	col, row, _ := v.project(lots[0].Position())
	if grid[row][col].kind != cellHighlight || grid[row][col].ch != '4' {
		t.Fatalf("expected highlighted marker on top, got %+v", grid[row][col])
	}
}

func TestMovePin_WrapsLongitudeAndClampsLatitude(t *testing.T) {
	pos := movePin(model.Coordinates{Latitude: 0, Longitude: 179.99}, 10, 0)
	if pos.Longitude > -179 || pos.Longitude < -180 {
		t.Fatalf("expected longitude to wrap, got %f", pos.Longitude)
	}
	pos = movePin(model.Coordinates{Latitude: 89.99}, 0, 100)
	if pos.Latitude != 90 {
		t.Fatalf("expected latitude clamped to 90, got %f", pos.Latitude)
	}
	back := movePin(movePin(model.Coordinates{Latitude: 10, Longitude: 10}, 3, 4), -3, -4)
	if math.Abs(back.Latitude-10) > 1e-6 {
		t.Fatalf("expected round trip latitude, got %f", back.Latitude)
	}
}
