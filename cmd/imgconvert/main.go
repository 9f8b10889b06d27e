// Command imgconvert converts an image file between any two formats
// known to the plugin registry, optionally recompressing, dithering the
// quantization, retiling and attaching a preview on the way through.
package main

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/deoncoke/oiio/imageio"
	"github.com/deoncoke/oiio/thumbnail"

	_ "github.com/deoncoke/oiio/bmp"
	_ "github.com/deoncoke/oiio/pnm"
	_ "github.com/deoncoke/oiio/tiff"
	_ "github.com/deoncoke/oiio/ztl"
)

type CLICmd struct {
	Input  string `arg:"" help:"Source image file"`
	Output string `arg:"" help:"Destination image file; its extension selects the output format"`

	Compression      string `help:"Compression scheme to request from the output format (e.g. none, lzw, deflate)"`
	CompressionLevel int    `help:"Compression effort for formats with tunable compressors" default:"0"`
	Dither           int    `help:"Dither seed applied when quantizing to 8-bit output; 0 disables" default:"0"`
	TileWidth        int    `help:"Write tiled output with this tile width" default:"0"`
	TileHeight       int    `help:"Write tiled output with this tile height" default:"0"`
	Thumbnail        int    `help:"Attach a preview no larger than this on its longer side; 0 disables" default:"0"`
	Plugins          string `help:"YAML manifest of plugin modules to load before converting"`
	Formats          bool   `help:"List the registered formats and exit"`
	Verbose          bool   `help:"Log per-stage progress"`
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	if (c.TileWidth > 0) != (c.TileHeight > 0) {
		return fmt.Errorf("tile width and height must be given together")
	}
	if c.TileWidth < 0 || c.TileHeight < 0 {
		return fmt.Errorf("invalid tile size %dx%d", c.TileWidth, c.TileHeight)
	}
	if c.Thumbnail < 0 {
		return fmt.Errorf("invalid thumbnail size %d", c.Thumbnail)
	}
	return nil
}

func (c *CLICmd) Run() error {
	if !c.Verbose {
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}

	if c.Plugins != "" {
		if err := imageio.Default().LoadManifest(c.Plugins); err != nil {
			return err
		}
	}
	if c.Formats {
		for _, name := range imageio.Default().Formats() {
			fmt.Println(name)
		}
		return nil
	}

	in, spec, err := imageio.OpenInput(c.Input)
	if err != nil {
		return err
	}
	defer in.Close()
	slog.Info("opened", "file", c.Input, "format", in.FormatName(),
		"size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"channels", spec.NChannels, "type", spec.Format.String())

	data := make([]byte, spec.ImageBytes())
	if err := in.ReadImage(data); err != nil {
		return fmt.Errorf("reading %q: %w", c.Input, err)
	}

	outSpec := spec.Copy()
	outSpec.TileWidth, outSpec.TileHeight, outSpec.TileDepth = 0, 0, 0
	if c.TileWidth > 0 {
		outSpec.TileWidth, outSpec.TileHeight = c.TileWidth, c.TileHeight
	}
	if c.Compression != "" {
		outSpec.SetAttribute("Compression", c.Compression)
	}
	if c.CompressionLevel > 0 {
		outSpec.SetAttribute("CompressionLevel", c.CompressionLevel)
	}
	if c.Dither != 0 {
		outSpec.SetAttribute("dither", c.Dither)
	}
	if c.Thumbnail > 0 {
		img, err := thumbnail.FromNative(spec, data)
		if err != nil {
			return fmt.Errorf("building thumbnail: %w", err)
		}
		if err := thumbnail.Attach(outSpec, img, c.Thumbnail); err != nil {
			return err
		}
		slog.Info("attached thumbnail",
			"width", outSpec.IntAttribute("thumbnail_width", 0),
			"height", outSpec.IntAttribute("thumbnail_height", 0))
	}

	out, err := imageio.CreateOutput(c.Output)
	if err != nil {
		return err
	}
	if err := out.Open(c.Output, outSpec, imageio.Create); err != nil {
		return fmt.Errorf("creating %q: %w", c.Output, err)
	}
	if err := out.WriteImage(spec.Format, data,
		imageio.AutoStride, imageio.AutoStride, imageio.AutoStride); err != nil {
		out.Close()
		return fmt.Errorf("writing %q: %w", c.Output, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("finalizing %q: %w", c.Output, err)
	}
	slog.Info("wrote", "file", c.Output, "format", out.FormatName())
	return nil
}

func main() {
	var cli CLICmd
	kctx := kong.Parse(&cli,
		kong.Name("imgconvert"),
		kong.Description("Convert images between registered formats."),
		kong.UsageOnError())
	if err := cli.Run(); err != nil {
		slog.Error("conversion failed", "error", err)
		kctx.Exit(1)
	}
}
