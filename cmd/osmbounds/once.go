package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/geometry"
	"github.com/NERVsystems/osmbounds/pkg/tools"
)

type onceOptions struct {
	relationID int64
	inputFile  string
	// geojson is a file path, or "-" to print GeoJSON instead of the summary
	geojson string
}

// runOnce assembles one relation and writes its summary, or its GeoJSON
// when opts.geojson is "-", to w.
func runOnce(ctx context.Context, a *boundary.Assembler, opts onceOptions, w io.Writer) error {
	if err := tools.ValidateRelationID(opts.relationID); err != nil {
		return err
	}

	var (
		b   *boundary.Boundary
		err error
	)
	if opts.inputFile != "" {
		f, openErr := os.Open(opts.inputFile)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		b, err = a.AssembleFile(ctx, f, opts.relationID)
	} else {
		b, err = a.Assemble(ctx, opts.relationID)
	}
	if err != nil {
		return err
	}

	if opts.geojson != "" {
		fc, err := geometry.FeatureCollection(b)
		if err != nil {
			return err
		}
		data, err := json.Marshal(fc)
		if err != nil {
			return err
		}
		if opts.geojson == "-" {
			_, err = fmt.Fprintln(w, string(data))
			return err
		}
		if err := os.WriteFile(opts.geojson, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", opts.geojson, err)
		}
	}

	summary, err := tools.Summarize(b)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// applyEnv sets every flag in mapping from its environment variable unless
// the flag was given on the command line.
func applyEnv(fs *flag.FlagSet, mapping map[string]string, lookup func(string) (string, bool)) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	for env, name := range mapping {
		if set[name] {
			continue
		}
		v, ok := lookup(env)
		if !ok || v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}
