package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/ntv2node/internal/events"
)

// Indicator is the aggregate channel activity shown on the LED.
type Indicator int

const (
	IndicatorIdle Indicator = iota
	IndicatorRunning
	IndicatorDropping
)

func (i Indicator) String() string {
	switch i {
	case IndicatorRunning:
		return "running"
	case IndicatorDropping:
		return "dropping"
	default:
		return "idle"
	}
}

// Manager follows channel events and shows their aggregate on one LED.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	ledType    string
	logger     *slog.Logger
	unsubs     []func()

	mu       sync.Mutex
	running  map[string]bool // crosspoint -> running
	dropping map[string]bool // running crosspoints that dropped since they started
	shown    Indicator
	applied  bool
}

// NewManager creates a manager driving ledType on controller.
func NewManager(controller Controller, eventBus *events.Bus, ledType string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		ledType:    ledType,
		logger:     logger,
		running:    make(map[string]bool),
		dropping:   make(map[string]bool),
	}
}

// Start subscribes to channel events and shows the idle state.
func (m *Manager) Start() {
	m.unsubs = []func(){
		m.eventBus.Subscribe(m.handleState),
		m.eventBus.Subscribe(m.handleDrop),
	}
	m.mu.Lock()
	m.updateLocked()
	m.mu.Unlock()
	m.logger.Info("LED manager started", "led", m.ledType)
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	if err := m.controller.Set(m.ledType, false, PatternOff); err != nil {
		m.logger.Warn("Failed to switch LED off", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

// Indicator returns what the LED currently shows.
func (m *Manager) Indicator() Indicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

func (m *Manager) handleState(e events.ChannelStateChangedEvent) {
	key := e.DeviceID + "/" + e.Crosspoint
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.To == "Running" {
		m.running[key] = true
	} else {
		delete(m.running, key)
	}
	// A fresh start or a stop clears the drop mark.
	if e.From != "Running" || e.To != "Running" {
		delete(m.dropping, key)
	}
	m.updateLocked()
}

func (m *Manager) handleDrop(e events.FramesDroppedEvent) {
	key := e.DeviceID + "/" + e.Crosspoint
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running[key] {
		return
	}
	m.dropping[key] = true
	m.updateLocked()
}

func (m *Manager) updateLocked() {
	want := IndicatorIdle
	switch {
	case len(m.dropping) > 0:
		want = IndicatorDropping
	case len(m.running) > 0:
		want = IndicatorRunning
	}
	if m.applied && want == m.shown {
		return
	}

	var err error
	switch want {
	case IndicatorDropping:
		err = m.controller.Set(m.ledType, true, PatternBlink)
	case IndicatorRunning:
		err = m.controller.Set(m.ledType, true, PatternSolid)
	default:
		err = m.controller.Set(m.ledType, false, PatternOff)
	}
	if err != nil {
		m.logger.Warn("Failed to set LED", "indicator", want, "error", err)
		return
	}
	m.shown = want
	m.applied = true
	m.logger.Debug("LED updated", "indicator", want, "running", len(m.running), "dropping", len(m.dropping))
}

// LEDType returns the LED the manager drives.
func (m *Manager) LEDType() string { return m.ledType }

// Controller returns the underlying controller.
func (m *Manager) Controller() Controller { return m.controller }
