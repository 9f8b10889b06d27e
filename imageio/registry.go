package imageio

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// ProtocolVersion is the plugin protocol this build of the framework
// speaks. A plugin declaring any other version is rejected at
// registration time.
const ProtocolVersion = 2

// InputFactory creates a fresh, closed reader instance.
type InputFactory func() ImageInput

// OutputFactory creates a fresh, closed writer instance.
type OutputFactory func() ImageOutput

// PluginRecord describes one registered format plugin: its name, the
// protocol version it was built against, its optional reader and writer
// factories, and the file extensions it recognizes (without dots,
// lower case, order-insensitive).
type PluginRecord struct {
	Name       string
	Version    int
	Input      InputFactory
	Output     OutputFactory
	Extensions []string
}

// Registry owns the table of loaded format plugins. It hands out fresh
// reader/writer instances by format name and resolves filenames to
// plugins by extension matching. All methods are safe for concurrent
// use; one mutex guards the table, which is fine since registration and
// lookup are rare next to per-pixel work.
type Registry struct {
	mu      sync.Mutex
	records []*PluginRecord // registration order, significant for matching
	byName  map[string]*PluginRecord
	log     *slog.Logger
}

// NewRegistry creates an empty registry logging through slog.Default.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*PluginRecord),
		log:    slog.Default(),
	}
}

// SetLogger replaces the logger used for registration warnings.
func (r *Registry) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	r.log = l
	r.mu.Unlock()
}

// Register adds a plugin record to the table. A version other than
// ProtocolVersion rejects the record with ErrVersionMismatch. A record
// re-using an already-registered format name wins over the earlier one;
// the replacement is logged as a warning, not an error.
func (r *Registry) Register(rec PluginRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("imageio: refusing to register plugin with empty format name")
	}
	if rec.Version != ProtocolVersion {
		return fmt.Errorf("%w: %q declares version %d, registry speaks %d",
			ErrVersionMismatch, rec.Name, rec.Version, ProtocolVersion)
	}
	c := rec
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName[c.Name]; ok {
		r.log.Warn("imageio: duplicate plugin registration, last one wins", "format", c.Name)
		for i, p := range r.records {
			if p == old {
				r.records = append(r.records[:i], r.records[i+1:]...)
				break
			}
		}
	}
	r.byName[c.Name] = &c
	r.records = append(r.records, &c)
	return nil
}

// Unregister drops the named plugin from the table. Instances already
// created from it are unaffected; callers must close them themselves.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	for i, p := range r.records {
		if p == old {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return
		}
	}
}

// Shutdown empties the table. Outstanding instances must already be
// closed; using one after Shutdown is undefined.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.byName = make(map[string]*PluginRecord)
}

// Formats returns the registered format names in registration order.
func (r *Registry) Formats() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.records))
	for i, p := range r.records {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the record registered under the given format name.
func (r *Registry) Lookup(format string) (PluginRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[format]
	if !ok {
		return PluginRecord{}, false
	}
	return *p, true
}

// Input instantiates a fresh reader for the named format.
func (r *Registry) Input(format string) (*Reader, error) {
	rec, ok := r.Lookup(format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotFound, format)
	}
	if rec.Input == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoReader, format)
	}
	return NewReader(rec.Input()), nil
}

// Output instantiates a fresh writer for the named format.
func (r *Registry) Output(format string) (*Writer, error) {
	rec, ok := r.Lookup(format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotFound, format)
	}
	if rec.Output == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoWriter, format)
	}
	return NewWriter(rec.Output()), nil
}

// candidates returns records matching the filename's extension in
// registration order, followed by every other record as a fallback.
func (r *Registry) candidates(filename string) []PluginRecord {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched, rest []PluginRecord
	for _, p := range r.records {
		hit := false
		for _, e := range p.Extensions {
			if e == ext {
				hit = true
				break
			}
		}
		if hit {
			matched = append(matched, *p)
		} else {
			rest = append(rest, *p)
		}
	}
	return append(matched, rest...)
}

// OpenInput resolves the filename to a plugin by extension, probes the
// candidates in registration order, and returns an opened Reader with
// its spec. Candidates whose extension does not match are still tried
// last, so a misnamed file of a recognizable format opens anyway.
func (r *Registry) OpenInput(filename string) (*Reader, *ImageSpec, error) {
	for _, rec := range r.candidates(filename) {
		if rec.Input == nil {
			continue
		}
		in := NewReader(rec.Input())
		if !in.Probe(filename) {
			continue
		}
		spec, err := in.Open(filename)
		if err != nil {
			in.Close()
			continue
		}
		return in, spec, nil
	}
	return nil, nil, fmt.Errorf("%w: no plugin can read %q", ErrFormatNotFound, filename)
}

// CreateOutput resolves the filename's extension to a plugin with a
// writer factory and returns a fresh, unopened Writer for it.
func (r *Registry) CreateOutput(filename string) (*Writer, error) {
	for _, rec := range r.candidates(filename) {
		if rec.Output == nil {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
		for _, e := range rec.Extensions {
			if e == ext {
				return NewWriter(rec.Output()), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no plugin can write %q", ErrFormatNotFound, filename)
}

// The default registry backs the package-level convenience functions.
// Built-in format packages register themselves into it from init, so a
// blank import is enough to make a format available. Code that wants an
// isolated plugin table constructs its own Registry instead.
var defaultRegistry = NewRegistry()

// Default returns the process-wide default registry.
func Default() *Registry { return defaultRegistry }

// Register adds a plugin record to the default registry.
func Register(rec PluginRecord) error { return defaultRegistry.Register(rec) }

// Input instantiates a reader for the named format from the default
// registry.
func Input(format string) (*Reader, error) { return defaultRegistry.Input(format) }

// Output instantiates a writer for the named format from the default
// registry.
func Output(format string) (*Writer, error) { return defaultRegistry.Output(format) }

// OpenInput opens the file through the default registry.
func OpenInput(filename string) (*Reader, *ImageSpec, error) {
	return defaultRegistry.OpenInput(filename)
}

// CreateOutput creates a writer for the filename through the default
// registry.
func CreateOutput(filename string) (*Writer, error) {
	return defaultRegistry.CreateOutput(filename)
}
