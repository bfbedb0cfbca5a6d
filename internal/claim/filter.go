package claim

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/rowlease/internal/item"
)

// Filter is a compiled CEL row predicate. The zero Filter accepts every
// row.
//
// Expressions see:
//
//	row         map(string, string)  every header → cell value
//	row_number  int                  1-based row number
//	status      string               value of the status field
//	now_ms      int                  claim time in Unix milliseconds
//
// For example: `row.deal_id != "" && double(row.price) < 200.0`.
type Filter struct {
	expr string
	prog cel.Program
}

// CompileFilter compiles expr. An empty expr yields the accept-all Filter.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("row_number", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("%w: parse filter: %v", ErrInvalidRequest, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, fmt.Errorf("%w: check filter: %v", ErrInvalidRequest, iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: program filter: %v", ErrInvalidRequest, err)
	}
	return Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Match evaluates the filter against w. Evaluation errors, such as a
// failed double() conversion, and non-bool results reject the row.
func (f Filter) Match(w item.WorkItem, now time.Time) bool {
	if f.prog == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"row":        w.Fields,
		"row_number": int64(w.Row),
		"status":     string(w.Status),
		"now_ms":     now.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// maxCachedFilters bounds filterCache. Expressions past the bound are
// compiled on every call.
const maxCachedFilters = 128

// filterCache memoizes compiled filters by expression.
type filterCache struct {
	mu    sync.Mutex
	progs map[string]Filter
}

func (c *filterCache) get(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.progs[expr]; ok {
		return f, nil
	}
	f, err := CompileFilter(expr)
	if err != nil {
		return Filter{}, err
	}
	if c.progs == nil {
		c.progs = make(map[string]Filter)
	}
	if len(c.progs) < maxCachedFilters {
		c.progs[expr] = f
	}
	return f, nil
}
