package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays ROWLEASE_* environment variables onto cfg. GCP_SA_JSON,
// SPREADSHEET_ID, SHEET_ID, DEALS_SHEET_NAME and RAW_DEALS_TAB are honoured
// as fallbacks for the Sheets credentials, spreadsheet id and tab.
//
// Every variable is applied before returning; malformed values leave the
// field unchanged and are reported together in the returned error.
func FromEnv(cfg *Config) error {
	var errs []error
	bad := func(key, v string, err error) {
		errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
	}
	if v := os.Getenv("ROWLEASE_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ROWLEASE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ROWLEASE_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("ROWLEASE_TABLE"); v != "" {
		cfg.Table = v
	}

	if v := firstEnv("ROWLEASE_SPREADSHEET_ID", "SPREADSHEET_ID", "SHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := firstEnv("ROWLEASE_SHEET", "DEALS_SHEET_NAME", "RAW_DEALS_TAB"); v != "" {
		cfg.Sheets.Sheet = v
	}
	if v := os.Getenv("ROWLEASE_CREDENTIALS_FILE"); v != "" {
		cfg.Sheets.CredentialsFile = v
	}
	if v := firstEnv("ROWLEASE_CREDENTIALS_JSON", "GCP_SA_JSON"); v != "" {
		cfg.Sheets.CredentialsJSON = v
	}

	if v := os.Getenv("ROWLEASE_WORKER_ID"); v != "" {
		cfg.Claim.WorkerID = v
	}
	if v := os.Getenv("ROWLEASE_STATUS_FIELD"); v != "" {
		cfg.Claim.StatusField = v
	}
	if v := os.Getenv("ROWLEASE_MAX_LEASE_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			bad("ROWLEASE_MAX_LEASE_AGE", v, err)
		} else {
			cfg.Claim.MaxLeaseAge = Duration{d}
		}
	}
	if v := os.Getenv("ROWLEASE_CLAIM_STRATEGY"); v != "" {
		cfg.Claim.Strategy = v
	}
	if v := os.Getenv("ROWLEASE_STATUSES"); v != "" {
		cfg.Claim.Statuses = splitList(v)
	}

	if v := os.Getenv("ROWLEASE_DEADLETTER_MAX_FAILS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			bad("ROWLEASE_DEADLETTER_MAX_FAILS", v, err)
		} else {
			cfg.DeadLetter.MaxFails = n
		}
	}
	if v := os.Getenv("ROWLEASE_DEADLETTER_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			bad("ROWLEASE_DEADLETTER_MAX_ROWS", v, err)
		} else {
			cfg.DeadLetter.MaxRows = n
		}
	}
	if v := os.Getenv("ROWLEASE_DEADLETTER_STATUS"); v != "" {
		cfg.DeadLetter.Status = v
	}

	if v := os.Getenv("ROWLEASE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ROWLEASE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ROWLEASE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ROWLEASE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	if v := os.Getenv("ROWLEASE_OTEL_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = v
	}
	if v := os.Getenv("ROWLEASE_OTEL_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("ROWLEASE_OTEL_HEADERS"); v != "" {
		cfg.Tracing.Headers = v
	}
	if v := os.Getenv("ROWLEASE_OTEL_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err != nil {
			bad("ROWLEASE_OTEL_INSECURE", v, err)
		} else {
			cfg.Tracing.Insecure = b
		}
	}
	if v := os.Getenv("ROWLEASE_OTEL_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			bad("ROWLEASE_OTEL_SAMPLE_RATIO", v, err)
		} else {
			cfg.Tracing.SampleRatio = f
		}
	}
	if v := os.Getenv("ROWLEASE_ENVIRONMENT"); v != "" {
		cfg.Tracing.Environment = v
	}
	if len(errs) > 0 {
		return fmt.Errorf("config env: %w", errors.Join(errs...))
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
