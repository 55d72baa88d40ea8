package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"parking-finder-cli/booking"
	"parking-finder-cli/model"
	"parking-finder-cli/service"
	"parking-finder-cli/store"
)

// Mode picks the screen the program starts on.
type Mode int

const (
	ModeBrowse Mode = iota
	ModeAdd
)

const (
	defaultRadiusKM  = 5.0
	defaultPinSpanKM = 1.0
	minPinSpanKM     = 0.05
	maxPinSpanKM     = 500.0
)

// LotCreator saves new parking lots.
type LotCreator interface {
	CreateLot(ctx context.Context, draft model.LotDraft) error
}

// Options wires the screens to their collaborators. Nil fields get defaults
// talking to the configured service.
type Options struct {
	Mode       Mode
	Reconciler *booking.Reconciler
	Creator    LotCreator
	Locator    service.LocationProvider
	RadiusKM   float64
	SpeedKMH   float64
}

type appState int

const (
	stateLocating appState = iota
	stateLoadingLots
	stateBrowse
	stateDetail
	stateRate
	stateNotice
	stateLocationDenied
	stateAddForm
	stateAddPin
	stateSubmitting
	stateError
)

type appModel struct {
	mode       Mode
	reconciler *booking.Reconciler
	creator    LotCreator
	locator    service.LocationProvider
	radiusKM   float64
	speedKMH   float64

	state     appState
	lastState appState
	err       error

	width  int
	height int

	position *model.Coordinates

	lotList list.Model
	showMap bool
	spinner spinner.Model

	pending    *booking.Pending
	rating     int
	ratingPick int

	notice notice

	form      lotForm
	pin       model.Coordinates
	pinSpanKM float64

	recentLots map[int]bool
	myRatings  map[int]store.MyRating
}

// notice is a dismissible notification. Acknowledging it moves to then.
type notice struct {
	title          string
	text           string
	success        bool
	then           appState
	clearSelection bool
	refresh        bool
	quit           bool
}

type errMsg struct {
	err            error
	returnState    appState
	returnStateSet bool
}

type locationMsg struct {
	position model.Coordinates
	err      error
}

type lotsMsg struct {
	lots []model.ParkingLot
	err  error
}

type bookingMsg struct {
	result booking.BookingResult
}

type ratingMsg struct {
	result booking.RatingResult
	err    error
}

type createdMsg struct {
	draft model.LotDraft
	err   error
}

func New(opts Options) tea.Model {
	var client *service.Client
	defaultClient := func() *service.Client {
		if client == nil {
			client = service.NewClient(nil)
		}
		return client
	}

	m := appModel{
		mode:       opts.Mode,
		reconciler: opts.Reconciler,
		creator:    opts.Creator,
		locator:    opts.Locator,
		radiusKM:   opts.RadiusKM,
		speedKMH:   opts.SpeedKMH,
		state:      stateLocating,
		pinSpanKM:  defaultPinSpanKM,
		recentLots: make(map[int]bool),
		myRatings:  make(map[int]store.MyRating),
	}
	if m.reconciler == nil {
		m.reconciler = booking.NewReconciler(defaultClient())
	}
	if m.creator == nil {
		m.creator = defaultClient()
	}
	if m.locator == nil {
		m.locator = service.NewDeviceLocator(nil, true, 2*time.Minute)
	}
	if m.radiusKM <= 0 {
		m.radiusKM = defaultRadiusKM
	}

	m.lotList = newList("Nearby Parking")
	m.form = newLotForm()

	if recents, err := store.LoadRecentBookings(); err != nil {
		log.Printf("[tui] load recent bookings: %v", err)
	} else {
		for _, recent := range recents {
			m.recentLots[recent.LotID] = true
		}
	}
	if ratings, err := store.LoadMyRatings(); err != nil {
		log.Printf("[tui] load ratings: %v", err)
	} else {
		m.myRatings = ratings
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	m.spinner = sp

	return m
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.locateCmd(), m.spinner.Tick)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLists()
		return m, nil

	case tea.KeyMsg:
		if m.handleFilterInput(msg) {
			return m, nil
		}
		next, cmd, handled := m.handleKey(msg)
		if handled {
			return next, cmd
		}
		m = next.(appModel)
		// fallthrough to component update

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy() {
			return m, cmd
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		if msg.returnStateSet {
			m.lastState = msg.returnState
		} else {
			m.lastState = recoverStateFrom(m.state)
		}
		m.state = stateError
		return m, nil

	case locationMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateLocationDenied
			return m, nil
		}
		position := msg.position
		m.position = &position
		if m.mode == ModeAdd {
			return m.openAddForm()
		}
		m.state = stateLoadingLots
		return m, tea.Batch(m.fetchLotsCmd(position), m.spinner.Tick)

	case lotsMsg:
		if msg.err != nil {
			returnState := stateBrowse
			if _, ok := m.reconciler.Query(); !ok {
				returnState = stateLoadingLots
			}
			return m, errWithReturnCmd(msg.err, returnState)
		}
		m.syncLots()
		m.state = stateBrowse
		return m, nil

	case bookingMsg:
		return m.settleBooking(msg.result)

	case ratingMsg:
		return m.settleRating(msg)

	case createdMsg:
		if msg.err != nil {
			m.state = stateAddForm
			m.form.err = createFailureText(msg.err)
			return m, nil
		}
		m.form = newLotForm()
		m.notice = notice{
			title:   "Lot saved",
			text:    fmt.Sprintf("%s was added with %d of %d spots free.", msg.draft.Name, msg.draft.Available, msg.draft.Capacity),
			success: true,
			then:    stateBrowse,
			refresh: m.position != nil,
			quit:    m.mode == ModeAdd,
		}
		m.state = stateNotice
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateBrowse:
		if !m.showMap {
			m.lotList, cmd = m.lotList.Update(msg)
		}
	case stateAddForm:
		cmd = m.form.update(msg)
	}
	return m, cmd
}

func (m appModel) View() string {
	header := m.headerView()
	switch m.state {
	case stateLocating, stateLoadingLots, stateSubmitting:
		return header + "\n\n" + m.loadingView()
	case stateBrowse:
		return header + "\n\n" + m.browseView()
	case stateDetail:
		return header + "\n\n" + m.detailView()
	case stateRate:
		return header + "\n\n" + m.rateView()
	case stateNotice:
		return header + "\n\n" + m.noticeView()
	case stateLocationDenied:
		return header + "\n\n" + m.locationDeniedView()
	case stateAddForm:
		return header + "\n\n" + m.form.view(m.width)
	case stateAddPin:
		return header + "\n\n" + m.pinView()
	case stateError:
		return header + "\n\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.err.Error()) + "\n\n" + hint("Press enter to retry, esc to go back or ctrl+c to quit.")
	default:
		return header
	}
}

func (m appModel) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Render("Parking Finder")
	sub := []string{}
	if m.position != nil {
		label := fmt.Sprintf("%.4f, %.4f", m.position.Latitude, m.position.Longitude)
		if source := locationSourceLabel(m.position.Source); source != "" {
			label += " (" + source + ")"
		}
		sub = append(sub, "Location: "+label)
	}
	if m.state == stateBrowse || m.state == stateDetail || m.state == stateRate {
		sub = append(sub, fmt.Sprintf("Radius: %.1f km", m.radiusKM))
		sub = append(sub, fmt.Sprintf("Lots: %d", len(m.reconciler.Lots())))
	}
	meta := strings.Join(sub, " • ")
	if meta != "" {
		meta = "\n" + lipgloss.NewStyle().Faint(true).Render(meta)
	}

	hints := "ctrl+c quit"
	switch m.state {
	case stateBrowse:
		hints = "ctrl+c quit • type to filter • enter open lot • tab toggle map • ctrl+r refresh • ctrl+n add lot"
		if m.showMap {
			hints = "ctrl+c quit • arrows move between markers • enter open lot • tab list • ctrl+r refresh"
		}
	case stateDetail:
		hints = "ctrl+c quit • esc back • b book a spot • r rate"
	case stateRate:
		hints = "ctrl+c quit • esc cancel • 1-5 or ←/→ then enter"
	case stateNotice:
		hints = "enter ok"
	case stateLocationDenied:
		hints = "ctrl+c quit • r retry"
	case stateAddForm:
		hints = "ctrl+c quit • esc back • tab next field • ctrl+p pick on map • ctrl+s save"
	case stateAddPin:
		hints = "ctrl+c quit • esc cancel • arrows move pin • +/- zoom • c my location • enter use pin"
	}
	filterLine := ""
	if listPtr := m.activeList(); listPtr != nil {
		if filter := listPtr.FilterValue(); filter != "" {
			filterLine = "\n" + hint(fmt.Sprintf("Filter: %s", filter))
		}
	}
	return title + meta + filterLine + "\n" + hint(hints)
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit, true
	case "q":
		if m.state != stateAddForm {
			return m, tea.Quit, true
		}
	case "esc":
		if listPtr := m.activeList(); listPtr != nil {
			if listPtr.SettingFilter() || listPtr.IsFiltered() {
				listPtr.ResetFilter()
				return m, nil, true
			}
		}
		next, cmd := m.goBack()
		return next, cmd, true
	}

	switch m.state {
	case stateBrowse:
		switch msg.String() {
		case "ctrl+r":
			m.state = stateLoadingLots
			return m, tea.Batch(m.refreshCmd(), m.spinner.Tick), true
		case "ctrl+n":
			next, cmd := m.openAddForm()
			return next, cmd, true
		case "tab":
			m.showMap = !m.showMap
			return m, nil, true
		case "enter":
			return m.openSelectedLot()
		}
		if m.showMap {
			switch msg.String() {
			case "up", "left":
				m.lotList.CursorUp()
				return m, nil, true
			case "down", "right":
				m.lotList.CursorDown()
				return m, nil, true
			}
		}

	case stateDetail:
		switch msg.String() {
		case "b":
			return m.startBooking()
		case "r":
			if m.pending != nil || m.rating != 0 {
				return m, nil, true
			}
			sel, ok := m.reconciler.Selected()
			if !ok {
				m.state = stateBrowse
				return m, nil, true
			}
			m.ratingPick = 5
			if mine, ok := m.myRatings[sel.Id]; ok {
				m.ratingPick = mine.Rating
			}
			m.state = stateRate
			return m, nil, true
		}

	case stateRate:
		switch key := msg.String(); key {
		case "1", "2", "3", "4", "5":
			return m.submitRating(int(key[0] - '0'))
		case "left", "h", "down":
			m.ratingPick = max(1, m.ratingPick-1)
			return m, nil, true
		case "right", "l", "up":
			m.ratingPick = min(5, m.ratingPick+1)
			return m, nil, true
		case "enter":
			return m.submitRating(m.ratingPick)
		}

	case stateNotice:
		switch msg.String() {
		case "enter", " ":
			next, cmd := m.acknowledge()
			return next, cmd, true
		}
		return m, nil, true

	case stateLocationDenied:
		switch msg.String() {
		case "r", "enter":
			m.err = nil
			m.state = stateLocating
			return m, tea.Batch(m.locateCmd(), m.spinner.Tick), true
		}

	case stateError:
		if msg.Type == tea.KeyEnter {
			m.err = nil
			m.state = stateLoadingLots
			return m, tea.Batch(m.refreshCmd(), m.spinner.Tick), true
		}

	case stateAddForm:
		switch msg.String() {
		case "tab", "down":
			return m, m.form.focusField(m.form.focus + 1), true
		case "shift+tab", "up":
			return m, m.form.focusField(m.form.focus - 1), true
		case "enter":
			if m.form.focus < fieldCount-1 {
				return m, m.form.focusField(m.form.focus + 1), true
			}
			return m.submitForm()
		case "ctrl+s":
			return m.submitForm()
		case "ctrl+p":
			if pos, ok := m.form.position(); ok {
				m.pin = pos
			} else if m.position != nil {
				m.pin = *m.position
			}
			m.state = stateAddPin
			return m, nil, true
		}

	case stateAddPin:
		step := m.pinSpanKM / 10
		switch msg.String() {
		case "up", "k":
			m.pin = movePin(m.pin, 0, step*cellAspect)
		case "down", "j":
			m.pin = movePin(m.pin, 0, -step*cellAspect)
		case "left", "h":
			m.pin = movePin(m.pin, -step, 0)
		case "right", "l":
			m.pin = movePin(m.pin, step, 0)
		case "+", "=":
			m.pinSpanKM = math.Max(minPinSpanKM, m.pinSpanKM/2)
		case "-", "_":
			m.pinSpanKM = math.Min(maxPinSpanKM, m.pinSpanKM*2)
		case "c":
			if m.position != nil {
				m.pin = *m.position
			}
		case "enter":
			m.form.setPosition(m.pin)
			m.state = stateAddForm
		default:
			return m, nil, false
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m appModel) goBack() (tea.Model, tea.Cmd) {
	switch m.state {
	case stateDetail:
		m.reconciler.ClearSelection()
		m.state = stateBrowse
	case stateRate:
		m.state = stateDetail
	case stateNotice:
		return m.acknowledge()
	case stateError:
		m.state = m.lastState
		if m.state == stateLoadingLots {
			return m, tea.Batch(m.refreshCmd(), m.spinner.Tick)
		}
	case stateAddForm:
		if m.mode == ModeAdd {
			return m, tea.Quit
		}
		m.state = stateBrowse
	case stateAddPin:
		m.state = stateAddForm
	default:
		return m, nil
	}
	return m, nil
}

func (m appModel) openSelectedLot() (tea.Model, tea.Cmd, bool) {
	item, ok := m.lotList.SelectedItem().(lotItem)
	if !ok {
		return m, nil, true
	}
	if err := m.reconciler.Select(item.lot.Id); err != nil {
		return m, errCmd(err), true
	}
	m.state = stateDetail
	return m, nil, true
}

func (m appModel) openAddForm() (tea.Model, tea.Cmd) {
	if m.position != nil {
		m.pin = *m.position
		if strings.TrimSpace(m.form.inputs[fieldLatitude].Value()) == "" {
			m.form.setPosition(*m.position)
		}
	}
	m.state = stateAddForm
	return m, m.form.focusField(m.form.focus)
}

func (m appModel) startBooking() (tea.Model, tea.Cmd, bool) {
	if m.pending != nil || m.rating != 0 {
		return m, nil, true
	}
	sel, ok := m.reconciler.Selected()
	if !ok {
		m.state = stateBrowse
		return m, nil, true
	}
	pending, err := m.reconciler.BeginBooking(sel.Id)
	if err != nil {
		m.notice = notice{title: "Cannot book", text: bookingRefusal(sel, err), then: stateDetail}
		m.state = stateNotice
		return m, nil, true
	}
	m.pending = &pending
	m.syncLots()
	return m, tea.Batch(m.completeBookingCmd(pending), m.spinner.Tick), true
}

func (m appModel) settleBooking(result booking.BookingResult) (tea.Model, tea.Cmd) {
	m.pending = nil
	m.syncLots()

	if !result.Succeeded() {
		m.notice = notice{title: "Booking failed", text: result.Message, then: stateDetail}
		m.state = stateNotice
		return m, nil
	}

	if lot, ok := m.reconciler.Lot(result.LotID); ok {
		if err := store.RememberBooking(lot); err != nil {
			log.Printf("[tui] remember booking: %v", err)
		}
	}
	m.recentLots[result.LotID] = true
	text := result.Message
	if result.RefreshErr != nil {
		text += "\n\nAvailability could not be refreshed; press ctrl+r to try again."
	}
	m.notice = notice{
		title:          "Booked",
		text:           text,
		success:        true,
		then:           stateBrowse,
		clearSelection: true,
	}
	m.state = stateNotice
	return m, nil
}

func (m appModel) submitRating(rating int) (tea.Model, tea.Cmd, bool) {
	sel, ok := m.reconciler.Selected()
	if !ok {
		m.state = stateBrowse
		return m, nil, true
	}
	m.rating = rating
	m.state = stateDetail
	return m, tea.Batch(m.submitRatingCmd(sel.Id, rating), m.spinner.Tick), true
}

func (m appModel) settleRating(msg ratingMsg) (tea.Model, tea.Cmd) {
	m.rating = 0
	m.syncLots()

	if msg.err != nil {
		m.notice = notice{title: "Rating failed", text: msg.err.Error(), then: stateDetail}
		m.state = stateNotice
		return m, nil
	}
	result := msg.result
	if !result.Succeeded() {
		m.notice = notice{title: "Rating failed", text: result.Message, then: stateDetail}
		m.state = stateNotice
		return m, nil
	}

	if err := store.RememberRating(result.LotID, result.Rating); err != nil {
		log.Printf("[tui] remember rating: %v", err)
	}
	m.myRatings[result.LotID] = store.MyRating{Rating: result.Rating, RatedAt: time.Now()}
	m.notice = notice{title: "Rated", text: result.Message, success: true, then: stateDetail}
	m.state = stateNotice
	return m, nil
}

func (m appModel) submitForm() (tea.Model, tea.Cmd, bool) {
	draft, ok := m.form.validate()
	if !ok {
		return m, nil, true
	}
	m.state = stateSubmitting
	return m, tea.Batch(m.createLotCmd(draft), m.spinner.Tick), true
}

func (m appModel) acknowledge() (tea.Model, tea.Cmd) {
	n := m.notice
	m.notice = notice{}
	if n.clearSelection {
		m.reconciler.ClearSelection()
	}
	if n.quit {
		return m, tea.Quit
	}
	if n.refresh {
		m.state = stateLoadingLots
		return m, tea.Batch(m.refreshCmd(), m.spinner.Tick)
	}
	m.state = n.then
	if m.state == stateDetail {
		if _, ok := m.reconciler.Selected(); !ok {
			m.state = stateBrowse
		}
	}
	return m, nil
}

func (m *appModel) handleFilterInput(msg tea.KeyMsg) bool {
	listPtr := m.activeList()
	if listPtr == nil {
		return false
	}
	if !listPtr.FilteringEnabled() {
		return false
	}
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) == 0 {
			return false
		}
		m.appendFilter(listPtr, string(msg.Runes))
		return true
	case tea.KeySpace:
		m.appendFilter(listPtr, " ")
		return true
	case tea.KeyBackspace, tea.KeyDelete:
		if listPtr.FilterValue() == "" {
			return false
		}
		m.popFilter(listPtr)
		return true
	default:
		return false
	}
}

func (m *appModel) appendFilter(listPtr *list.Model, value string) {
	if value == "" {
		return
	}
	current := listPtr.FilterValue()
	listPtr.SetFilterText(current + value)
}

func (m *appModel) popFilter(listPtr *list.Model) {
	value := listPtr.FilterValue()
	if value == "" {
		return
	}
	value = trimLastRune(value)
	if value == "" {
		listPtr.ResetFilter()
		return
	}
	listPtr.SetFilterText(value)
}

func trimLastRune(value string) string {
	runes := []rune(value)
	if len(runes) <= 1 {
		return ""
	}
	return string(runes[:len(runes)-1])
}

// activeList is the list receiving typed filter input, if any.
func (m *appModel) activeList() *list.Model {
	if m.state == stateBrowse && !m.showMap {
		return &m.lotList
	}
	return nil
}

func (m appModel) busy() bool {
	return m.state == stateLocating ||
		m.state == stateLoadingLots ||
		m.state == stateSubmitting ||
		m.pending != nil ||
		m.rating != 0
}

func (m appModel) loadingView() string {
	title := "Loading"
	switch m.state {
	case stateLocating:
		title = "Finding your location"
	case stateLoadingLots:
		title = "Loading nearby parking"
	case stateSubmitting:
		title = "Saving parking lot"
	}

	return fmt.Sprintf("%s %s\n\n%s", m.spinner.View(), title, hint("Fetching data..."))
}

func (m *appModel) resizeLists() {
	if m.width == 0 || m.height == 0 {
		return
	}
	h := m.height - 6
	if h < 6 {
		h = 6
	}
	m.lotList.SetSize(m.width, h)
}

// syncLots rebuilds the list from the reconciler, keeping the cursor on the same lot.
func (m *appModel) syncLots() {
	highlighted := -1
	if item, ok := m.lotList.SelectedItem().(lotItem); ok {
		highlighted = item.lot.Id
	}
	items := buildLotItems(m.reconciler.Lots(), m.position, m.speedKMH, m.recentLots)
	m.lotList.SetItems(items)
	for i, item := range items {
		if item.(lotItem).lot.Id == highlighted {
			m.lotList.Select(i)
			break
		}
	}
}

func (m appModel) browseView() string {
	lots := m.reconciler.Lots()
	if len(lots) == 0 {
		message := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("No parking lots within %.1f km.", m.radiusKM))
		return message + "\n\n" + hint("ctrl+r search again • ctrl+n add a lot • ctrl+c quit")
	}
	if !m.showMap {
		return m.lotList.View()
	}

	highlighted := -1
	caption := ""
	if item, ok := m.lotList.SelectedItem().(lotItem); ok {
		highlighted = item.lot.Id
		caption = item.Title() + " • " + item.Description()
	}
	center := model.Coordinates{}
	if m.position != nil {
		center = *m.position
	}
	cols, rows := m.mapSize()
	view := mapView{
		center:      center,
		spanKM:      m.radiusKM,
		cols:        cols,
		rows:        rows,
		originGlyph: '@',
		highlighted: highlighted,
	}
	return view.render(lotMarkers(lots)) + "\n" + caption
}

func (m appModel) pinView() string {
	cols, rows := m.mapSize()
	view := mapView{
		center:      m.pin,
		spanKM:      m.pinSpanKM,
		cols:        cols,
		rows:        rows,
		originGlyph: '+',
		highlighted: -1,
	}
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Pin: %.6f, %.6f", m.pin.Latitude, m.pin.Longitude))
	return view.render(lotMarkers(m.reconciler.Lots())) + "\n" + label
}

func (m appModel) mapSize() (int, int) {
	cols, rows := 60, 16
	if m.width > 0 {
		cols = max(8, m.width-4)
	}
	if m.height > 0 {
		rows = max(4, m.height-12)
	}
	return cols, rows
}

func (m appModel) detailView() string {
	sel, ok := m.reconciler.Selected()
	if !ok {
		return hint("No lot selected.")
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render(sel.Name)
	availability := fmt.Sprintf("Available: %d / %d", sel.Available, sel.Capacity)
	if m.pending != nil && m.pending.LotID == sel.Id {
		availability += "  " + m.spinner.View() + " booking..."
	}
	lines := []string{
		title,
		"",
		availabilityStyle(sel).Render(availability),
		fmt.Sprintf("Rate: %s per hour", formatRate(sel.Rate)),
		"Rating: " + formatRating(sel),
	}
	if m.position != nil {
		distance := model.DistanceKm(*m.position, sel.Position())
		lines = append(lines, fmt.Sprintf("Distance: %.1f km • about %.0f min by car", distance, model.EstimatedMinutes(distance, m.speedKMH)))
	}
	if mine, ok := m.myRatings[sel.Id]; ok {
		lines = append(lines, hint(fmt.Sprintf("You rated this lot %d/5.", mine.Rating)))
	}
	if m.recentLots[sel.Id] {
		lines = append(lines, hint("You booked here before."))
	}
	if m.rating != 0 {
		lines = append(lines, "", fmt.Sprintf("%s Sending %d/5 rating...", m.spinner.View(), m.rating))
	}

	bookLabel := "Book a spot"
	bookChip := actionChip
	if sel.Available == 0 {
		bookLabel = "Full"
		bookChip = disabledChip
	}
	if m.pending != nil {
		bookChip = disabledChip
	}
	actions := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, bookChip.Render("B"), "  ", bookLabel),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, actionChip.Render("R"), "  ", "Rate this lot"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, actionChip.Render("ESC"), "  ", "Back to the list"),
	)
	lines = append(lines, "", actions)
	return m.panel(strings.Join(lines, "\n"), lipgloss.Color("63"))
}

func (m appModel) rateView() string {
	sel, _ := m.reconciler.Selected()
	stars := make([]string, 0, 5)
	on := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	off := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	for i := 1; i <= 5; i++ {
		if i <= m.ratingPick {
			stars = append(stars, on.Render("★"))
		} else {
			stars = append(stars, off.Render("☆"))
		}
	}
	content := strings.Join([]string{
		lipgloss.NewStyle().Bold(true).Render("Rate " + sel.Name),
		"",
		strings.Join(stars, " ") + fmt.Sprintf("  %d/5", m.ratingPick),
		"",
		hint("Press 1-5, or use ←/→ and enter."),
	}, "\n")
	return m.panel(content, lipgloss.Color("214"))
}

func (m appModel) noticeView() string {
	color := lipgloss.Color("203")
	if m.notice.success {
		color = lipgloss.Color("42")
	}
	headerChip := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(color).
		Padding(0, 2)
	content := strings.Join([]string{
		headerChip.Render(m.notice.title),
		"",
		m.notice.text,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, actionChip.Render("ENTER"), "  ", "OK"),
	}, "\n")
	return m.panel(content, color)
}

func (m appModel) locationDeniedView() string {
	headerChip := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("203")).
		Padding(0, 2)

	message := "Your location could not be determined."
	switch {
	case errors.Is(m.err, service.ErrPermissionDenied):
		message = "Location permission was denied. Allow access in your system settings, or pass --lat and --lng."
	case errors.Is(m.err, service.ErrLocationDisabled):
		message = "Location services are turned off. Turn them on, or pass --lat and --lng."
	}
	lines := []string{
		headerChip.Render("Location unavailable"),
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true).Render(message),
	}
	if m.err != nil && !service.IsLocationDenied(m.err) {
		lines = append(lines, hint(m.err.Error()))
	}
	lines = append(lines,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, actionChip.Render("R"), "  ", "Try again"),
		"",
		hint("CTRL+C quit"),
	)
	return m.panel(strings.Join(lines, "\n"), lipgloss.Color("203"))
}

var (
	actionChip = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("63")).
			Width(8).
			Align(lipgloss.Center).
			Padding(0, 1)
	disabledChip = actionChip.Background(lipgloss.Color("240"))
)

func (m appModel) panel(content string, border lipgloss.Color) string {
	panelStyle := lipgloss.NewStyle().
		Padding(1, 3).
		Border(lipgloss.NormalBorder()).
		BorderForeground(border).
		MarginTop(1)
	if m.width > 56 {
		cardWidth := m.width - 8
		if cardWidth > 84 {
			cardWidth = 84
		}
		panelStyle = panelStyle.Width(cardWidth)
	}
	panel := panelStyle.Render(content)
	if m.width > 0 {
		panel = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, panel)
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(panel)
}

func newList(title string) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = title
	l.Filter = caseInsensitiveFilter
	l.SetFilteringEnabled(true)
	l.SetShowFilter(true)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	return l
}

func hint(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}

func errCmd(err error) tea.Cmd {
	return func() tea.Msg {
		return errMsg{err: err}
	}
}

func errWithReturnCmd(err error, returnState appState) tea.Cmd {
	return func() tea.Msg {
		return errMsg{
			err:            err,
			returnState:    returnState,
			returnStateSet: true,
		}
	}
}

func recoverStateFrom(state appState) appState {
	switch state {
	case stateLoadingLots, stateDetail, stateRate:
		return stateBrowse
	case stateSubmitting:
		return stateAddForm
	case stateError:
		return stateBrowse
	default:
		return state
	}
}

func caseInsensitiveFilter(term string, targets []string) []list.Rank {
	term = strings.ToLower(term)
	lower := make([]string, len(targets))
	for i, t := range targets {
		lower[i] = strings.ToLower(t)
	}
	return list.DefaultFilter(term, lower)
}

func (m appModel) locateCmd() tea.Cmd {
	locator := m.locator
	return func() tea.Msg {
		position, err := service.Locate(context.Background(), locator)
		if err != nil {
			return locationMsg{err: fmt.Errorf("failed to detect current location: %w", err)}
		}
		return locationMsg{position: position}
	}
}

func (m appModel) fetchLotsCmd(center model.Coordinates) tea.Cmd {
	reconciler := m.reconciler
	radius := m.radiusKM
	return func() tea.Msg {
		lots, err := reconciler.FetchNearby(context.Background(), center, radius)
		return lotsMsg{lots: lots, err: err}
	}
}

func (m appModel) refreshCmd() tea.Cmd {
	if _, ok := m.reconciler.Query(); !ok && m.position != nil {
		return m.fetchLotsCmd(*m.position)
	}
	reconciler := m.reconciler
	return func() tea.Msg {
		lots, err := reconciler.Refresh(context.Background())
		return lotsMsg{lots: lots, err: err}
	}
}

func (m appModel) completeBookingCmd(pending booking.Pending) tea.Cmd {
	reconciler := m.reconciler
	return func() tea.Msg {
		return bookingMsg{result: reconciler.CompleteBooking(context.Background(), pending)}
	}
}

func (m appModel) submitRatingCmd(lotID int, rating int) tea.Cmd {
	reconciler := m.reconciler
	return func() tea.Msg {
		result, err := reconciler.SubmitRating(context.Background(), lotID, rating)
		return ratingMsg{result: result, err: err}
	}
}

func (m appModel) createLotCmd(draft model.LotDraft) tea.Cmd {
	creator := m.creator
	return func() tea.Msg {
		return createdMsg{draft: draft, err: creator.CreateLot(context.Background(), draft)}
	}
}

func bookingRefusal(lot model.ParkingLot, err error) string {
	if errors.Is(err, booking.ErrLotFull) {
		return fmt.Sprintf("%s has no free spots right now.", lot.Name)
	}
	return err.Error()
}

func createFailureText(err error) string {
	if service.IsRejection(err) {
		if msg := service.RejectionMessage(err); msg != "" {
			return msg
		}
		return "Could not save the parking lot."
	}
	return "Network error. Please check your connection and try again."
}

type lotItem struct {
	lot         model.ParkingLot
	recent      bool
	hasDistance bool
	distanceKM  float64
	minutes     float64
}

func (l lotItem) Title() string {
	if l.lot.Available == 0 {
		return l.lot.Name + " (full)"
	}
	return l.lot.Name
}

func (l lotItem) Description() string {
	parts := []string{}
	if l.recent {
		parts = append(parts, "Recent")
	}
	parts = append(parts, fmt.Sprintf("%d/%d free", l.lot.Available, l.lot.Capacity))
	parts = append(parts, formatRate(l.lot.Rate)+"/h")
	parts = append(parts, formatRating(l.lot))
	if l.hasDistance {
		parts = append(parts, fmt.Sprintf("%.1f km • ~%.0f min", l.distanceKM, l.minutes))
	}
	return strings.Join(parts, " • ")
}

func (l lotItem) FilterValue() string {
	return strings.ToLower(l.lot.Name)
}

// buildLotItems orders lots nearest first; lots are listed by name when no position is known.
func buildLotItems(lots []model.ParkingLot, position *model.Coordinates, speedKMH float64, recent map[int]bool) []list.Item {
	items := make([]lotItem, 0, len(lots))
	for _, lot := range lots {
		item := lotItem{lot: lot, recent: recent[lot.Id]}
		if position != nil {
			item.hasDistance = true
			item.distanceKM = model.DistanceKm(*position, lot.Position())
			item.minutes = model.EstimatedMinutes(item.distanceKM, speedKMH)
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].hasDistance && items[j].hasDistance && math.Abs(items[i].distanceKM-items[j].distanceKM) > 1e-6 {
			return items[i].distanceKM < items[j].distanceKM
		}
		return strings.ToLower(items[i].lot.Name) < strings.ToLower(items[j].lot.Name)
	})

	result := make([]list.Item, 0, len(items))
	for _, item := range items {
		result = append(result, item)
	}
	return result
}

func availabilityStyle(lot model.ParkingLot) lipgloss.Style {
	switch {
	case lot.Available == 0:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	case lot.Capacity > 0 && float64(lot.Available)/float64(lot.Capacity) < 0.2:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	}
}

func formatRate(rate float64) string {
	return fmt.Sprintf("$%.2f", rate)
}

func formatRating(lot model.ParkingLot) string {
	if len(lot.Ratings) == 0 {
		return "No ratings"
	}
	return fmt.Sprintf("★ %.1f (%d)", lot.AverageRating(), len(lot.Ratings))
}

func locationSourceLabel(source string) string {
	raw := strings.TrimSpace(source)
	if raw == "" {
		return ""
	}
	normalized := strings.ToLower(raw)
	switch normalized {
	case "system":
		return "via system"
	case "static":
		return "fixed"
	case "ipapi", "ipwhois", "ipinfo":
		return fmt.Sprintf("via IP (%s)", normalized)
	default:
		return fmt.Sprintf("via %s", raw)
	}
}
