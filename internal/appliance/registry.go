package appliance

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/device"
)

// Binder creates the appliance for id from its first report.
type Binder func(id string, initial device.Snapshot) (*Appliance, error)

// Registry holds the configured fleet. Appliances are bound lazily when the
// first report for their id arrives, since capabilities come from that report.
type Registry struct {
	ids  []string
	bind Binder

	mu         sync.RWMutex
	appliances map[string]*Appliance
	onBind     []func(*Appliance)
}

// NewRegistry creates a registry for the configured device ids.
func NewRegistry(ids []string, bind Binder) *Registry {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return &Registry{
		ids:        sorted,
		bind:       bind,
		appliances: make(map[string]*Appliance),
	}
}

// OnBind registers fn to run for every newly bound appliance.
// Must be called before the first Apply.
func (r *Registry) OnBind(fn func(*Appliance)) {
	r.mu.Lock()
	r.onBind = append(r.onBind, fn)
	r.mu.Unlock()
}

// IDs returns the configured device ids, sorted.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) configured(id string) bool {
	i := sort.SearchStrings(r.ids, id)
	return i < len(r.ids) && r.ids[i] == id
}

// Apply routes reports to their appliances, binding unknown ones first.
// Reports for ids that are not configured are dropped.
func (r *Registry) Apply(reports []device.Report) {
	for _, rep := range reports {
		if !r.configured(rep.ID) {
			log.Warn().Str("device", rep.ID).Msg("Report for unconfigured device ignored")
			continue
		}

		if a, ok := r.Get(rep.ID); ok {
			a.RequestMerge(rep.Delta)
			continue
		}

		if _, err := r.bindOnce(rep); err != nil {
			log.Error().Err(err).Str("device", rep.ID).Msg("Failed to bind appliance")
		}
	}
}

func (r *Registry) bindOnce(rep device.Report) (*Appliance, error) {
	r.mu.Lock()
	if a, ok := r.appliances[rep.ID]; ok {
		r.mu.Unlock()
		a.RequestMerge(rep.Delta)
		return a, nil
	}
	a, err := r.bind(rep.ID, rep.Snapshot())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.appliances[rep.ID] = a
	hooks := append(([]func(*Appliance))(nil), r.onBind...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(a)
	}
	return a, nil
}

// Get returns the bound appliance for id.
func (r *Registry) Get(id string) (*Appliance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appliances[id]
	return a, ok
}

// List returns the bound appliances ordered by id.
func (r *Registry) List() []*Appliance {
	r.mu.RLock()
	out := make([]*Appliance, 0, len(r.appliances))
	for _, a := range r.appliances {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Ready reports whether every configured device has been bound.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.appliances) == len(r.ids)
}

// Close closes every bound appliance.
func (r *Registry) Close() {
	for _, a := range r.List() {
		a.Close()
	}
}
