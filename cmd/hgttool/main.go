// hgttool is a CLI utility for working with SRTM .hgt tiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Faultbox/hgt-flyover/internal/catalog"
	"github.com/Faultbox/hgt-flyover/internal/fetch"
	"github.com/Faultbox/hgt-flyover/internal/heightmap"
	"github.com/Faultbox/hgt-flyover/internal/logger"
	"github.com/Faultbox/hgt-flyover/pkg/hgt"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "scan":
		err = cmdScan(ctx, args)
	case "list", "ls":
		err = cmdList(ctx, args)
	case "range":
		err = cmdRange(ctx, args)
	case "fetch":
		err = cmdFetch(ctx, args)
	case "synth":
		err = cmdSynth(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hgttool - SRTM elevation tile utility

Usage:
  hgttool <command> [options]

Commands:
  info <tile>                          Show side, elevation range and voids
  scan [-db file] <dir>                Index every tile in dir
  list [-db file]                      List indexed tiles
  range [-db file] [-around N57W005 -r 1]
                                       Print the global elevation range
  fetch -url TEMPLATE [-dir d] [-r 1] <tile>
                                       Download a tile and its neighbours
  synth [-side 1200] [-out dir] [-ext .hgt] <tile>
                                       Write a synthetic tile

Examples:
  hgttool info data/N57W005.hgt
  hgttool scan -db tiles.db data
  hgttool range -db tiles.db -around N57W005 -r 2
  hgttool fetch -url "https://example.org/srtm/{{.Lat}}/{{.FileName}}.zip" N57W005
  hgttool synth -side 1200 -out data N57W005`)
}

func parseCoord(s string) (hgt.Coord, error) {
	if filepath.Ext(s) == "" {
		s += ".hgt"
	}
	return hgt.ParseName(s)
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hgttool info <tile>")
	}
	path := args[0]

	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	tile, err := hgt.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Printf("File:    %s\n", path)
	if c, err := hgt.ParseName(path); err == nil {
		fmt.Printf("Tile:    %s\n", c.Stem())
	}
	fmt.Printf("Size:    %s\n", humanize.IBytes(uint64(st.Size())))
	fmt.Printf("Side:    %d (+1 overlap)\n", tile.Side)
	if lo, hi, ok := tile.Range(); ok {
		fmt.Printf("Range:   %d .. %d m\n", lo, hi)
	} else {
		fmt.Println("Range:   all void")
	}
	fmt.Printf("Voids:   %s\n", humanize.Comma(int64(tile.Voids())))
	return nil
}

func openCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("-db is required")
	}
	return catalog.Open(path)
}

func cmdScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	db := fs.String("db", "tiles.db", "Catalog database")
	verbose := fs.Bool("v", false, "Log every tile")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: hgttool scan [-db file] <dir>")
	}
	if *verbose {
		if err := logger.Init("debug", ""); err != nil {
			return err
		}
		defer logger.Sync()
	}

	cat, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer cat.Close()

	report, err := cat.Scan(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("Scanned:   %d (%s)\n", report.Scanned, humanize.IBytes(uint64(report.Bytes)))
	fmt.Printf("Unchanged: %d\n", report.Unchanged)
	fmt.Printf("Skipped:   %d\n", report.Skipped)
	fmt.Printf("Took:      %s\n", report.Took.Round(time.Millisecond))
	return nil
}

func cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	db := fs.String("db", "tiles.db", "Catalog database")
	fs.Parse(args)

	cat, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer cat.Close()

	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-8s %5d %6d %6d %8s  %s\n",
			e.Coord.Stem(), e.Side, e.Min, e.Max,
			humanize.IBytes(uint64(e.SizeBytes)), humanize.Time(e.ScannedAt))
	}
	fmt.Printf("%d tiles\n", len(entries))
	return nil
}

func cmdRange(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("range", flag.ExitOnError)
	db := fs.String("db", "tiles.db", "Catalog database")
	around := fs.String("around", "", "Limit to tiles around this one")
	radius := fs.Int("r", 1, "Radius in tiles for -around")
	fs.Parse(args)

	cat, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer cat.Close()

	var rng heightmap.Range
	if *around != "" {
		c, err := parseCoord(*around)
		if err != nil {
			return err
		}
		rng, err = cat.RangeAround(ctx, c, *radius)
		if err != nil {
			return err
		}
	} else {
		rng, err = cat.GlobalRange(ctx)
		if err != nil {
			return err
		}
	}
	fmt.Printf("min: %.0f\nmax: %.0f\n", rng.Min, rng.Max)
	return nil
}

func cmdFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	tmpl := fs.String("url", "", "URL template, e.g. https://host/{{.FileName}}.zip")
	dir := fs.String("dir", "data", "Destination directory")
	radius := fs.Int("r", 0, "Also fetch neighbours within this many tiles")
	jobs := fs.Int("j", 4, "Parallel downloads")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: hgttool fetch -url TEMPLATE [-dir d] [-r 1] <tile>")
	}
	center, err := parseCoord(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := logger.Init("info", ""); err != nil {
		return err
	}
	defer logger.Sync()

	f := &fetch.Fetcher{URLTemplate: *tmpl, Dir: *dir, Concurrency: *jobs}
	results, err := f.Fetch(ctx, fetch.Plan(center, *radius))
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("FAIL %s: %v\n", r.Coord.Stem(), r.Err)
		case r.Skipped:
			fmt.Printf("have %s\n", r.Path)
		default:
			fmt.Printf("got  %s\n", r.Path)
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tiles failed", failed, len(results))
	}
	return nil
}

func cmdSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	side := fs.Int("side", hgt.SideSRTM3-1, "Samples per side without the overlap")
	out := fs.String("out", ".", "Output directory")
	ext := fs.String("ext", ".hgt", "Container: .hgt, .hgt.zip, .hgt.gz or .hgt.zst")
	maxElev := fs.Int("max", 2500, "Peak elevation in metres")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: hgttool synth [-side 1200] [-out dir] <tile>")
	}
	c, err := parseCoord(fs.Arg(0))
	if err != nil {
		return err
	}

	tile := heightmap.SynthTile(c, *side, int16(*maxElev))
	raw, err := hgt.EncodeTile(tile)
	if err != nil {
		return err
	}
	path := filepath.Join(*out, c.Stem()+*ext)
	if err := hgt.WriteFile(path, raw); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s)\n", path, humanize.IBytes(uint64(len(raw))))
	return nil
}
