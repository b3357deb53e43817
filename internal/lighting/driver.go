package lighting

import (
	"context"
	"sync"

	"github.com/nerrad567/moodring/internal/palette"
)

// LightState is the state sent to one light.
type LightState struct {
	On  bool
	RGB palette.RGB
}

// Commander sends a state to a single light. Implemented by *hue.Client.
type Commander interface {
	SetLightState(ctx context.Context, lightID string, state LightState) error
}

// Logger is the logging surface the driver needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Driver applies palettes to the lights in a Table.
//
// Thread Safety: Apply may be called concurrently.
type Driver struct {
	table     *Table
	commander Commander
	logger    Logger

	onCommand   func(lightID string, err error)
	onCommandMu sync.RWMutex

	wg sync.WaitGroup
}

// NewDriver creates a Driver. commander may be nil, in which case Apply
// never sends anything.
func NewDriver(table *Table, commander Commander, logger Logger) *Driver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Driver{
		table:     table,
		commander: commander,
		logger:    logger,
	}
}

// SetOnCommand registers a callback run after each light command completes.
func (d *Driver) SetOnCommand(fn func(lightID string, err error)) {
	d.onCommandMu.Lock()
	d.onCommand = fn
	d.onCommandMu.Unlock()
}

// Table returns the driver's assignment table.
func (d *Driver) Table() *Table {
	return d.table
}

// Apply sends palette p to the lights.
//
// For each color at index i, every light assigned to slot i is switched on
// with that color. Slots without lights and colors that are not valid hex
// are skipped. Commands run concurrently and are not awaited.
//
// Returns:
//   - int: Number of commands issued
func (d *Driver) Apply(ctx context.Context, p palette.Palette) int {
	if d.commander == nil {
		return 0
	}

	issued := 0
	for slot, color := range p {
		lights := d.table.Lights(slot)
		if len(lights) == 0 {
			continue
		}

		rgb, err := color.RGB()
		if err != nil {
			d.logger.Warn("skipping slot with invalid color", "slot", slot, "color", color.String(), "error", err)
			continue
		}

		state := LightState{On: true, RGB: rgb}
		for _, id := range lights {
			issued++
			d.wg.Add(1)
			go d.send(ctx, id, slot, state)
		}
	}

	return issued
}

func (d *Driver) send(ctx context.Context, lightID string, slot int, state LightState) {
	defer d.wg.Done()

	err := d.commander.SetLightState(ctx, lightID, state)
	if err != nil {
		d.logger.Warn("light command failed", "light_id", lightID, "slot", slot, "error", err)
	} else {
		d.logger.Debug("light updated", "light_id", lightID, "slot", slot,
			"r", state.RGB.R, "g", state.RGB.G, "b", state.RGB.B)
	}

	d.onCommandMu.RLock()
	fn := d.onCommand
	d.onCommandMu.RUnlock()
	if fn != nil {
		fn(lightID, err)
	}
}

// Wait blocks until every command issued so far has completed.
func (d *Driver) Wait() {
	d.wg.Wait()
}
