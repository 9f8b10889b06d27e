package imageio_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/deoncoke/oiio/imageio"
)

func quietRegistry() *imageio.Registry {
	r := imageio.NewRegistry()
	r.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r
}

func memRecord(name string, exts ...string) imageio.PluginRecord {
	return imageio.PluginRecord{
		Name:       name,
		Version:    imageio.ProtocolVersion,
		Input:      func() imageio.ImageInput { return &memInput{} },
		Output:     func() imageio.ImageOutput { return &memOutput{} },
		Extensions: exts,
	}
}

func TestRegisterVersionGating(t *testing.T) {
	tests := []struct {
		name    string
		version int
		wantErr bool
	}{
		{"matching version", imageio.ProtocolVersion, false},
		{"older version", imageio.ProtocolVersion - 1, true},
		{"newer version", imageio.ProtocolVersion + 1, true},
		{"zero version", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := quietRegistry()
			rec := memRecord("gate", "mem")
			rec.Version = tt.version
			err := r.Register(rec)
			if tt.wantErr {
				if !errors.Is(err, imageio.ErrVersionMismatch) {
					t.Errorf("Register = %v, want ErrVersionMismatch", err)
				}
				if _, ok := r.Lookup("gate"); ok {
					t.Error("rejected plugin must not be registered")
				}
				if _, err := r.Input("gate"); err == nil {
					t.Error("rejected plugin must never instantiate a factory")
				}
			} else if err != nil {
				t.Errorf("Register = %v, want nil", err)
			}
		})
	}
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(memRecord("", "mem")); err == nil {
		t.Error("empty format name must be rejected")
	}
}

func TestDuplicateRegistrationLastWins(t *testing.T) {
	r := quietRegistry()
	first := memRecord("dup")
	first.Extensions = []string{"one"}
	second := memRecord("dup")
	second.Extensions = []string{"two"}
	if err := r.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(second); err != nil {
		t.Errorf("duplicate registration = %v, want nil (a warning, not an error)", err)
	}
	rec, ok := r.Lookup("dup")
	if !ok {
		t.Fatal("plugin vanished after duplicate registration")
	}
	if len(rec.Extensions) != 1 || rec.Extensions[0] != "two" {
		t.Errorf("Lookup returned extensions %v, want the later record's", rec.Extensions)
	}
	if got := len(r.Formats()); got != 1 {
		t.Errorf("registry holds %d records, want 1", got)
	}
}

func TestInputOutputFactories(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}

	in, err := r.Input("mem")
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if in.FormatName() != "mem" {
		t.Errorf("FormatName = %q, want mem", in.FormatName())
	}
	if _, err := r.Input("nosuch"); !errors.Is(err, imageio.ErrFormatNotFound) {
		t.Errorf("Input(nosuch) = %v, want ErrFormatNotFound", err)
	}

	readOnly := memRecord("readonly", "ro")
	readOnly.Output = nil
	if err := r.Register(readOnly); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Output("readonly"); !errors.Is(err, imageio.ErrNoWriter) {
		t.Errorf("Output(readonly) = %v, want ErrNoWriter", err)
	}
}

func TestOpenInputMatchesExtension(t *testing.T) {
	spec := imageio.NewImageSpec(2, 2, 1, imageio.TypeUInt8)
	fillMem("picture.mem", spec)

	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	in, got, err := r.OpenInput("picture.mem")
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	if got.Width != 2 || got.Height != 2 {
		t.Errorf("opened spec %dx%d, want 2x2", got.Width, got.Height)
	}
}

// A file whose extension matches no plugin is still probed against every
// loaded plugin, so a misnamed file opens anyway.
func TestOpenInputFallsBackToProbing(t *testing.T) {
	spec := imageio.NewImageSpec(2, 2, 1, imageio.TypeUInt8)
	fillMem("misnamed.xyz", spec)

	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	in, _, err := r.OpenInput("misnamed.xyz")
	if err != nil {
		t.Fatalf("OpenInput on a misnamed file: %v", err)
	}
	in.Close()

	if _, _, err := r.OpenInput("nonexistent.mem"); !errors.Is(err, imageio.ErrFormatNotFound) {
		t.Errorf("OpenInput(nonexistent) = %v, want ErrFormatNotFound", err)
	}
}

func TestOpenInputTriesCandidatesInRegistrationOrder(t *testing.T) {
	spec := imageio.NewImageSpec(2, 2, 1, imageio.TypeUInt8)
	fillMem("shared.img", spec)

	r := quietRegistry()
	a := memRecord("first", "img")
	b := memRecord("second", "img")
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != nil {
		t.Fatal(err)
	}
	in, _, err := r.OpenInput("shared.img")
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	// Both plugins can open the file; registration order decides.
	if rec, _ := r.Lookup("first"); rec.Name != "first" {
		t.Fatal("lookup broken")
	}
	if got := r.Formats(); got[0] != "first" || got[1] != "second" {
		t.Errorf("Formats() = %v, want registration order", got)
	}
}

func TestUnregisterAndShutdown(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	r.Unregister("mem")
	if _, ok := r.Lookup("mem"); ok {
		t.Error("plugin still present after Unregister")
	}

	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()
	if len(r.Formats()) != 0 {
		t.Error("registry not empty after Shutdown")
	}
}

func TestCreateOutputByExtension(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateOutput("out.mem")
	if err != nil {
		t.Fatal(err)
	}
	if w.FormatName() != "mem" {
		t.Errorf("FormatName = %q, want mem", w.FormatName())
	}
	if _, err := r.CreateOutput("out.xyz"); !errors.Is(err, imageio.ErrFormatNotFound) {
		t.Errorf("CreateOutput(out.xyz) = %v, want ErrFormatNotFound", err)
	}
}

func TestLoadModuleMissingFile(t *testing.T) {
	r := quietRegistry()
	if _, err := r.LoadModule("/nonexistent/plugin.so"); err == nil {
		t.Error("loading a missing module must fail")
	}
	if len(r.Formats()) != 0 {
		t.Error("failed load must leave the registry untouched")
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	if err := os.WriteFile(path, []byte("plugins:\n  - ./missing.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := quietRegistry()
	if err := r.LoadManifest(path); err == nil {
		t.Error("manifest naming an unloadable module must report its error")
	}

	if err := r.LoadManifest(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing manifest must fail")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("plugins: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.LoadManifest(bad); err == nil {
		t.Error("malformed manifest must fail")
	}
}

// Distinct open instances must be independently usable from independent
// goroutines with no shared mutable state.
func TestConcurrentInstances(t *testing.T) {
	spec := imageio.NewImageSpec(16, 16, 3, imageio.TypeUInt8)
	fillMem("concurrent.mem", spec)

	r := quietRegistry()
	if err := r.Register(memRecord("mem", "mem")); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func() {
			in, _, err := r.OpenInput("concurrent.mem")
			if err != nil {
				done <- err
				return
			}
			defer in.Close()
			buf := make([]byte, spec.ImageBytes())
			done <- in.ReadImage(buf)
		}()
	}
	for g := 0; g < 8; g++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
