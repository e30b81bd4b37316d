package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/posterior/internal/api"
	"github.com/samcharles93/posterior/internal/posteriordb"
	"github.com/samcharles93/posterior/internal/summary"
)

// sampleOutput is the --out document of the sample command.
type sampleOutput struct {
	Model      string               `json:"model"`
	Seed       uint64               `json:"seed"`
	Stats      *api.RunStats        `json:"stats"`
	Summary    []summary.Stat       `json:"summary"`
	References []referenceCheck     `json:"references,omitempty"`
	Draws      map[string]api.Draws `json:"draws"`
}

type referenceCheck struct {
	Param string   `json:"param"`
	Mean  float64  `json:"mean"`
	Ref   *float64 `json:"reference_mean,omitempty"`
	Low   float64  `json:"low"`
	High  float64  `json:"high"`
	OK    bool     `json:"ok"`
}

// checkReferences compares posterior means against the model's reference
// values. Params without a summary row are skipped.
func checkReferences(refs []posteriordb.Reference, stats []summary.Stat) []referenceCheck {
	means := make(map[string]float64, len(stats))
	for _, s := range stats {
		means[s.Label] = s.Mean
	}
	var out []referenceCheck
	for _, r := range refs {
		m, ok := means[r.Param]
		if !ok {
			continue
		}
		rc := referenceCheck{Param: r.Param, Mean: m, Low: r.Low, High: r.High, OK: r.Contains(m)}
		if !math.IsNaN(r.Mean) {
			ref := r.Mean
			rc.Ref = &ref
		}
		out = append(out, rc)
	}
	return out
}

func writeReferences(w io.Writer, checks []referenceCheck) {
	if len(checks) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-16s %10s %10s %10s  %s\n", "reference", "mean", "low", "high", "status")
	for _, c := range checks {
		status := "ok"
		if !c.OK {
			status = "OUTSIDE"
		}
		fmt.Fprintf(w, "%-16s %10.3f %10.3f %10.3f  %s\n", c.Param, c.Mean, c.Low, c.High, status)
	}
}

// writeJSONFile writes v to path, creating parent directories.
func writeJSONFile(path string, v any) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
