package rows

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// parseSet turns repeated key=value flags into a map. Values may contain
// '='; keys may not be empty.
func parseSet(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q; expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// rowArg parses the single positional row number.
func rowArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one row number, got %d args", len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid row %q: %w", args[0], err)
	}
	if n < 2 {
		return 0, fmt.Errorf("row %d is not a data row; row 1 is the header", n)
	}
	return n, nil
}

// printJSON writes v as one JSON document to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
