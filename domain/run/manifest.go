package run

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"flowval/domain/core"
)

// Manifest is the record of one analysis run, written next to its figures
// so every output can be traced back to its inputs and parameters.
type Manifest struct {
	RunID       core.RunID             `yaml:"run_id" json:"run_id"`
	Analysis    Analysis               `yaml:"analysis" json:"analysis"`
	Tag         string                 `yaml:"tag" json:"tag"`
	Seed        int64                  `yaml:"seed" json:"seed"`
	CodeVersion string                 `yaml:"code_version" json:"code_version"`
	Parameters  map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Inputs      []Input                `yaml:"inputs" json:"inputs"`
	Outputs     []string               `yaml:"outputs" json:"outputs"`
	Fingerprint RunFingerprint         `yaml:"fingerprint" json:"fingerprint"`
	StartedAt   time.Time              `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time              `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// NewManifest starts a manifest for an analysis run
func NewManifest(analysis Analysis, tag string, seed int64, codeVersion string) *Manifest {
	return &Manifest{
		RunID:       core.NewRunID(),
		Analysis:    analysis,
		Tag:         tag,
		Seed:        seed,
		CodeVersion: codeVersion,
		Parameters:  map[string]interface{}{},
		StartedAt:   time.Now().UTC(),
	}
}

// AddInput fingerprints a file and records it.
func (m *Manifest) AddInput(path string) error {
	fp, n, err := core.FingerprintFile(path)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", path, err)
	}
	m.Inputs = append(m.Inputs, Input{Path: path, Fingerprint: fp, Bytes: n})
	return nil
}

// AddOutput records a file written by the run.
func (m *Manifest) AddOutput(path string) {
	m.Outputs = append(m.Outputs, path)
}

// Set records an analysis parameter.
func (m *Manifest) Set(key string, value interface{}) {
	if m.Parameters == nil {
		m.Parameters = map[string]interface{}{}
	}
	m.Parameters[key] = value
}

// Finish stamps the end time and computes the run fingerprint.
func (m *Manifest) Finish() {
	m.FinishedAt = time.Now().UTC()
	m.Fingerprint = NewRunFingerprint(m.Analysis, m.Tag, m.Seed, m.CodeVersion, m.Inputs)
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return fmt.Errorf("run manifest: run_id cannot be empty")
	}
	if m.Analysis == "" {
		return fmt.Errorf("run manifest: analysis cannot be empty")
	}
	if m.Tag == "" {
		return fmt.Errorf("run manifest: tag cannot be empty")
	}
	if m.CodeVersion == "" {
		return fmt.Errorf("run manifest: code_version cannot be empty")
	}
	return nil
}

// FileName is the conventional manifest name for the run.
func (m *Manifest) FileName() string {
	return fmt.Sprintf("manifest-%s-%s.yaml", m.Analysis, m.Tag)
}

// Write stores the manifest as YAML in dir, creating dir when needed.
func (m *Manifest) Write(dir string) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, m.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadManifest reads a manifest written by Write.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
