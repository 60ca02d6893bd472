package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for an instrument's numeric fields.
type ScaleSpec struct {
	PriceScale    Scale
	QuantityScale Scale
}

// InstrumentID is the numeric identifier for a tradable instrument.
type InstrumentID uint32

// Instrument describes a tradable instrument.
type Instrument struct {
	ID       InstrumentID
	Name     string
	TickSize Price
	Scale    ScaleSpec
}

// Registry stores instrument mappings in a compact form.
type Registry struct {
	instruments []Instrument
	byName      map[string]InstrumentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]InstrumentID)}
}

// AddInstrument registers a new instrument and returns its ID.
func (r *Registry) AddInstrument(name string, tickSize Price, scale ScaleSpec) (InstrumentID, error) {
	if name == "" {
		return 0, fmt.Errorf("instrument name is empty")
	}
	if tickSize <= 0 {
		return 0, fmt.Errorf("tick size must be > 0 for %s", name)
	}
	if id, ok := r.byName[name]; ok {
		return id, fmt.Errorf("instrument already exists: %s", name)
	}
	id := InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, Instrument{
		ID:       id,
		Name:     name,
		TickSize: tickSize,
		Scale:    scale,
	})
	r.byName[name] = id
	return id, nil
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// InstrumentIDByName resolves an instrument name to its ID.
func (r *Registry) InstrumentIDByName(name string) (InstrumentID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// InstrumentCount returns the number of registered instruments.
func (r *Registry) InstrumentCount() int {
	return len(r.instruments)
}

// InstrumentAt returns the instrument by zero-based index.
func (r *Registry) InstrumentAt(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}
