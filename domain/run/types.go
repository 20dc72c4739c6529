package run

import (
	"fmt"
	"sort"
	"strings"

	"flowval/domain/core"
)

// Analysis names one CLI analysis.
type Analysis string

const (
	AnalysisAssemble    Analysis = "assemble"
	AnalysisVariability Analysis = "variability"
	AnalysisFDC         Analysis = "fdc"
	AnalysisMoments     Analysis = "moments"
)

// Input is one file read by a run.
type Input struct {
	Path        string           `yaml:"path" json:"path"`
	Fingerprint core.Fingerprint `yaml:"fingerprint" json:"fingerprint"`
	Bytes       int64            `yaml:"bytes" json:"bytes"`
}

// RunFingerprint ensures deterministic replay: two runs with the same
// fingerprint read identical bytes with identical parameters.
type RunFingerprint struct {
	Analysis    Analysis         `yaml:"analysis" json:"analysis"`
	Tag         string           `yaml:"tag" json:"tag"`
	Seed        int64            `yaml:"seed" json:"seed"`
	CodeVersion string           `yaml:"code_version" json:"code_version"`
	Fingerprint core.Fingerprint `yaml:"fingerprint" json:"fingerprint"` // Hash of all above plus inputs
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(analysis Analysis, tag string, seed int64, codeVersion string, inputs []Input) RunFingerprint {
	return RunFingerprint{
		Analysis:    analysis,
		Tag:         tag,
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: computeRunFingerprint(analysis, tag, seed, codeVersion, inputs),
	}
}

// computeRunFingerprint hashes parameters and input hashes, with inputs in
// path order so discovery order cannot change the result.
func computeRunFingerprint(analysis Analysis, tag string, seed int64, codeVersion string, inputs []Input) core.Fingerprint {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	fmt.Fprintf(&b, "analysis:%s|tag:%s|seed:%d|code:%s", analysis, tag, seed, codeVersion)
	for _, in := range sorted {
		fmt.Fprintf(&b, "|%s=%s", in.Path, in.Fingerprint)
	}
	return core.NewFingerprint([]byte(b.String()))
}
