package imageio

// ParamValue is one entry of an ImageSpec's attribute list: a name and a
// typed value. The framework never interprets attribute values; they are
// carried through readers and writers untouched.
type ParamValue struct {
	Name  string
	Value any
}

// ImageSpec describes the geometry and sample layout of one image (or one
// subimage of a multi-image file): dimensions, channel count, per-sample
// types, optional tile sizes, and an ordered list of free-form attributes.
//
// For writing, the caller constructs an ImageSpec and passes it to
// ImageOutput.Open. For reading, the plugin populates one during Open.
// Once an open succeeds the layout it describes is committed for the life
// of that open instance; mutating it afterwards is a caller error.
type ImageSpec struct {
	Width  int // pixels per scanline
	Height int // scanlines per depth slice
	Depth  int // depth slices (1 for ordinary 2D images)

	NChannels int

	// Format is the sample type shared by all channels. If
	// ChannelFormats is non-empty it overrides Format per channel and
	// must have exactly NChannels entries.
	Format         TypeDesc
	ChannelFormats []TypeDesc

	// Tile dimensions. All zero means the image is scanline-oriented.
	TileWidth  int
	TileHeight int
	TileDepth  int

	attribs []ParamValue
}

// NewImageSpec constructs a 2D scanline-oriented spec with a uniform
// sample format.
func NewImageSpec(width, height, nchannels int, format TypeDesc) *ImageSpec {
	return &ImageSpec{
		Width:     width,
		Height:    height,
		Depth:     1,
		NChannels: nchannels,
		Format:    format,
	}
}

// Tiled reports whether the image is stored as tiles.
func (s *ImageSpec) Tiled() bool {
	return s.TileWidth > 0 && s.TileHeight > 0
}

// ChannelFormat returns the sample type of channel c.
func (s *ImageSpec) ChannelFormat(c int) TypeDesc {
	if len(s.ChannelFormats) > 0 {
		return s.ChannelFormats[c]
	}
	return s.Format
}

// PixelBytes returns the size of one full pixel across all channels.
func (s *ImageSpec) PixelBytes() int {
	if len(s.ChannelFormats) == 0 {
		return s.NChannels * s.Format.Size()
	}
	n := 0
	for _, f := range s.ChannelFormats {
		n += f.Size()
	}
	return n
}

// ScanlineBytes returns the size of one scanline of pixels.
func (s *ImageSpec) ScanlineBytes() int {
	return s.Width * s.PixelBytes()
}

// TileBytes returns the size of one full tile, or 0 for untiled images.
func (s *ImageSpec) TileBytes() int {
	if !s.Tiled() {
		return 0
	}
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	return s.TileWidth * s.TileHeight * td * s.PixelBytes()
}

// ImageBytes returns the size of the complete image.
func (s *ImageSpec) ImageBytes() int {
	d := s.Depth
	if d < 1 {
		d = 1
	}
	return d * s.Height * s.ScanlineBytes()
}

// SetAttribute sets a named attribute, replacing an existing entry of the
// same name in place so attribute order is preserved.
func (s *ImageSpec) SetAttribute(name string, value any) {
	for i := range s.attribs {
		if s.attribs[i].Name == name {
			s.attribs[i].Value = value
			return
		}
	}
	s.attribs = append(s.attribs, ParamValue{Name: name, Value: value})
}

// Attribute returns the named attribute's value and whether it exists.
func (s *ImageSpec) Attribute(name string) (any, bool) {
	for i := range s.attribs {
		if s.attribs[i].Name == name {
			return s.attribs[i].Value, true
		}
	}
	return nil, false
}

// EraseAttribute removes the named attribute if present.
func (s *ImageSpec) EraseAttribute(name string) {
	for i := range s.attribs {
		if s.attribs[i].Name == name {
			s.attribs = append(s.attribs[:i], s.attribs[i+1:]...)
			return
		}
	}
}

// Attributes returns the attribute list in insertion order. The returned
// slice is the spec's own storage; callers must not modify it.
func (s *ImageSpec) Attributes() []ParamValue {
	return s.attribs
}

// IntAttribute returns the named attribute as an int, accepting any
// integer-typed value, or def when absent or non-integer.
func (s *ImageSpec) IntAttribute(name string, def int) int {
	v, ok := s.Attribute(name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint32:
		return int(n)
	}
	return def
}

// StringAttribute returns the named attribute as a string, or def when
// absent or not a string.
func (s *ImageSpec) StringAttribute(name, def string) string {
	if v, ok := s.Attribute(name); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// FloatAttribute returns the named attribute as a float64, or def when
// absent or not a float.
func (s *ImageSpec) FloatAttribute(name string, def float64) float64 {
	v, ok := s.Attribute(name)
	if !ok {
		return def
	}
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	}
	return def
}

// Copy returns a deep copy of the spec. Attribute values themselves are
// shared; the framework treats them as immutable.
func (s *ImageSpec) Copy() *ImageSpec {
	c := *s
	if len(s.ChannelFormats) > 0 {
		c.ChannelFormats = append([]TypeDesc(nil), s.ChannelFormats...)
	}
	if len(s.attribs) > 0 {
		c.attribs = append([]ParamValue(nil), s.attribs...)
	}
	return &c
}
