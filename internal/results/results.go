// Package results reads the final_info.json artifact an experiment run
// leaves behind and reduces it to the means reported back to the agent.
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the artifact every successful run must write to its folder.
const FileName = "final_info.json"

var (
	// ErrMissingArtifact means a run exited 0 without writing its artifact.
	ErrMissingArtifact = errors.New("results artifact missing")
	// ErrMalformedArtifact means the artifact exists but does not have the
	// {group: {"means": {...}}} shape.
	ErrMalformedArtifact = errors.New("results artifact malformed")
)

// Means maps a metric name to its value. Numbers are json.Number so they
// are echoed back exactly as the experiment wrote them.
type Means map[string]any

// Summary maps a metric group to its means.
type Summary map[string]Means

// Extract loads runFolder/final_info.json and keeps only each group's means.
func Extract(runFolder string) (Summary, error) {
	path := filepath.Join(runFolder, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
	summary, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return summary, nil
}

// Parse reduces raw artifact bytes to a Summary.
func Parse(data []byte) (Summary, error) {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrMalformedArtifact, err)
	}
	if groups == nil {
		return nil, fmt.Errorf("%w: expected an object of metric groups", ErrMalformedArtifact)
	}

	summary := make(Summary, len(groups))
	for group, raw := range groups {
		var stats map[string]json.RawMessage
		if err := json.Unmarshal(raw, &stats); err != nil || stats == nil {
			return nil, fmt.Errorf("%w: group %q is not an object", ErrMalformedArtifact, group)
		}
		rawMeans, ok := stats["means"]
		if !ok {
			return nil, fmt.Errorf("%w: group %q has no means", ErrMalformedArtifact, group)
		}
		means, err := decodeMeans(rawMeans)
		if err != nil {
			return nil, fmt.Errorf("%w: means of group %q: %v", ErrMalformedArtifact, group, err)
		}
		summary[group] = means
	}
	return summary, nil
}

// BaselineDir is the folder holding the reference results the first prompt
// reports.
const BaselineDir = "run_0"

// LoadBaseline extracts dir/run_0. A missing baseline is not an error and
// yields a nil Summary.
func LoadBaseline(dir string) (Summary, error) {
	summary, err := Extract(filepath.Join(dir, BaselineDir))
	if errors.Is(err, ErrMissingArtifact) {
		return nil, nil
	}
	return summary, err
}

// Format renders a summary as indented JSON with sorted keys.
func Format(summary Summary) string {
	if summary == nil {
		summary = Summary{}
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		// Summary only holds values produced by the JSON decoder.
		return fmt.Sprintf("%v", map[string]Means(summary))
	}
	return string(data)
}

func decodeMeans(raw json.RawMessage) (Means, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var means Means
	if err := dec.Decode(&means); err != nil {
		return nil, errors.New("not an object")
	}
	if means == nil {
		return nil, errors.New("is null")
	}
	return means, nil
}
