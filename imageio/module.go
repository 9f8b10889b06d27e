package imageio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	yaml "gopkg.in/yaml.v2"
)

// Symbol names an externally compiled plugin module must export.
//
//	var  ImageIOVersion    int                      // required, must equal ProtocolVersion
//	var  ImageIOFormatName string                   // required
//	func ImageIONewInput() imageio.ImageInput       // optional
//	func ImageIONewOutput() imageio.ImageOutput     // optional
//	var  ImageIOExtensions []string                 // optional
const (
	symVersion    = "ImageIOVersion"
	symFormatName = "ImageIOFormatName"
	symNewInput   = "ImageIONewInput"
	symNewOutput  = "ImageIONewOutput"
	symExtensions = "ImageIOExtensions"
)

// LoadModule opens a compiled plugin module (a Go plugin .so built with
// -buildmode=plugin), validates its declared protocol version against
// ProtocolVersion, and registers the reader/writer factories it exports.
// A version mismatch or missing required symbol leaves the registry
// untouched and is reported as an ordinary error.
//
// The host platform provides no way to unload a loaded module;
// Unregister only removes the registry entry.
func (r *Registry) LoadModule(path string) (PluginRecord, error) {
	mod, err := plugin.Open(path)
	if err != nil {
		return PluginRecord{}, fmt.Errorf("imageio: cannot load module %q: %w", path, err)
	}

	version, err := lookupVar[int](mod, symVersion)
	if err != nil {
		return PluginRecord{}, fmt.Errorf("imageio: module %q: %w", path, err)
	}
	if version != ProtocolVersion {
		return PluginRecord{}, fmt.Errorf("%w: module %q declares version %d, registry speaks %d",
			ErrVersionMismatch, path, version, ProtocolVersion)
	}
	name, err := lookupVar[string](mod, symFormatName)
	if err != nil {
		return PluginRecord{}, fmt.Errorf("imageio: module %q: %w", path, err)
	}

	rec := PluginRecord{Name: name, Version: version}
	if sym, err := mod.Lookup(symNewInput); err == nil {
		f, ok := sym.(func() ImageInput)
		if !ok {
			return PluginRecord{}, fmt.Errorf("imageio: module %q: %s has wrong type", path, symNewInput)
		}
		rec.Input = f
	}
	if sym, err := mod.Lookup(symNewOutput); err == nil {
		f, ok := sym.(func() ImageOutput)
		if !ok {
			return PluginRecord{}, fmt.Errorf("imageio: module %q: %s has wrong type", path, symNewOutput)
		}
		rec.Output = f
	}
	if rec.Input == nil && rec.Output == nil {
		return PluginRecord{}, fmt.Errorf("imageio: module %q exports neither %s nor %s",
			path, symNewInput, symNewOutput)
	}
	if exts, err := lookupVar[[]string](mod, symExtensions); err == nil {
		rec.Extensions = exts
	}

	if err := r.Register(rec); err != nil {
		return PluginRecord{}, err
	}
	return rec, nil
}

func lookupVar[T any](mod *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := mod.Lookup(name)
	if err != nil {
		return zero, fmt.Errorf("missing required symbol %s", name)
	}
	p, ok := sym.(*T)
	if !ok {
		return zero, fmt.Errorf("symbol %s has wrong type", name)
	}
	return *p, nil
}

// manifest is the on-disk shape of a plugin manifest file.
type manifest struct {
	Plugins []string `yaml:"plugins"`
}

// LoadManifest reads a YAML manifest listing plugin module paths and
// loads each one. Relative paths are resolved against the manifest's own
// directory. Modules that fail to load do not stop the rest; their
// errors are joined into the returned error.
//
//	plugins:
//	  - ./modules/exr.so
//	  - /usr/lib/imageio/heif.so
func (r *Registry) LoadManifest(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("imageio: cannot read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("imageio: malformed manifest %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	var errs []error
	for _, p := range m.Plugins {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if _, err := r.LoadModule(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
