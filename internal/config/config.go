// Package config loads the contextualize configuration.
package config

// Config is the root configuration for contextualize.
type Config struct {
	Agent   AgentConfig   `json:"agent"`
	Paths   PathsConfig   `json:"paths"`
	Monitor MonitorConfig `json:"monitor"`
	Report  ReportConfig  `json:"report"`
}

// AgentConfig configures the external agent process.
type AgentConfig struct {
	Binary string   `json:"binary"` // agent CLI binary (default: "claude")
	Args   []string `json:"args"`   // extra arguments prepended to every invocation
}

// PathsConfig holds the persisted-state directories.
type PathsConfig struct {
	ConceptsDir string `json:"concepts_dir"` // concept markdown files
	LogsDir     string `json:"logs_dir"`     // task directories + dag.jsonl
	ReportsDir  string `json:"reports_dir"`  // report templates
}

// MonitorConfig configures the liveness monitor.
type MonitorConfig struct {
	ScanLimit int `json:"scan_limit"` // max task dirs scanned per reconcile pass
}

// ReportConfig configures report generation.
type ReportConfig struct {
	DefaultTemplate string `json:"default_template"` // template used when a task has none
}
