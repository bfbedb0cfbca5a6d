package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/rowlease/internal/observability"
	logpkg "github.com/rzbill/rowlease/pkg/log"
	"gopkg.in/yaml.v3"
)

// ErrUnknownBackend is returned by Validate for an unsupported table backend.
var ErrUnknownBackend = errors.New("unknown table backend")

// Table backends.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendSheets = "sheets"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Backend is memory, pebble or sheets.
	Backend string `json:"backend" yaml:"backend"`
	// DataDir is where the pebble backend keeps its database.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Fsync is always, interval or never.
	Fsync string `json:"fsync" yaml:"fsync"`
	// Table names the table inside the pebble database.
	Table string `json:"table" yaml:"table"`

	Sheets     SheetsConfig                `json:"sheets" yaml:"sheets"`
	Claim      ClaimConfig                 `json:"claim" yaml:"claim"`
	DeadLetter DeadLetterConfig            `json:"deadLetter" yaml:"deadLetter"`
	HTTP       HTTPConfig                  `json:"http" yaml:"http"`
	Log        logpkg.Config               `json:"log" yaml:"log"`
	Tracing    observability.TracingConfig `json:"tracing" yaml:"tracing"`
}

// SheetsConfig selects the spreadsheet tab and its credentials.
type SheetsConfig struct {
	SpreadsheetID   string `json:"spreadsheetId" yaml:"spreadsheetId"`
	Sheet           string `json:"sheet" yaml:"sheet"`
	CredentialsFile string `json:"credentialsFile" yaml:"credentialsFile"`
	// CredentialsJSON is usually supplied through the environment.
	CredentialsJSON string `json:"-" yaml:"-"`
}

// ClaimConfig holds claim defaults.
type ClaimConfig struct {
	WorkerID    string   `json:"workerId" yaml:"workerId"`
	StatusField string   `json:"statusField" yaml:"statusField"`
	MaxLeaseAge Duration `json:"maxLeaseAge" yaml:"maxLeaseAge"`
	// Strategy is optimistic or cas.
	Strategy string `json:"strategy" yaml:"strategy"`
	// Statuses registers extra recognized statuses.
	Statuses []string `json:"statuses" yaml:"statuses"`
}

// DeadLetterConfig holds dead-letter guard defaults.
type DeadLetterConfig struct {
	MaxFails int    `json:"maxFails" yaml:"maxFails"`
	MaxRows  int    `json:"maxRows" yaml:"maxRows"`
	Status   string `json:"status" yaml:"status"`
}

// HTTPConfig configures the HTTP facade.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Duration is a time.Duration written as a Go duration string ("10m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Backend: BackendPebble,
		DataDir: DefaultDataDir(),
		Fsync:   "always",
		Table:   "RAW_DEALS",
		Sheets: SheetsConfig{
			Sheet: "RAW_DEALS",
		},
		Claim: ClaimConfig{
			WorkerID:    DefaultWorkerID(),
			StatusField: "status",
			MaxLeaseAge: Duration{30 * time.Minute},
			Strategy:    "optimistic",
		},
		DeadLetter: DeadLetterConfig{
			MaxFails: 3,
			MaxRows:  5,
			Status:   "ERROR_HARD",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  logpkg.Config{Level: "info", Format: "text"},
	}
}

// DefaultWorkerID returns "<hostname>-<8 hex chars>", unique per process.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPebble:
	case BackendSheets:
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("sheets backend needs sheets.spreadsheetId")
		}
	default:
		return fmt.Errorf("%w %q; use memory|pebble|sheets", ErrUnknownBackend, c.Backend)
	}
	if c.Claim.MaxLeaseAge.Duration < 0 {
		return fmt.Errorf("claim.maxLeaseAge must not be negative, got %s", c.Claim.MaxLeaseAge)
	}
	if strings.TrimSpace(c.Claim.WorkerID) == "" {
		return errors.New("claim.workerId must not be empty")
	}
	return nil
}
