package claim

import (
	"fmt"
	"testing"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatch(t *testing.T) {
	w := item.WorkItem{Row: 5, Status: "READY", Fields: map[string]string{"price": "120", "ai_verdict": "GOOD"}}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{`row.ai_verdict == "GOOD"`, true},
		{`double(row.price) >= 150.0`, false},
		{`row_number > 4 && status == "READY"`, true},
		{`now_ms > 0`, true},
		{`row.missing == "x"`, false},
		{`row.price`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := CompileFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(w, t0))
		})
	}
}

func TestCompileFilterErrors(t *testing.T) {
	for _, expr := range []string{"row.", "undefined_var == 1", "row_number +"} {
		_, err := CompileFilter(expr)
		assert.ErrorIs(t, err, ErrInvalidRequest, expr)
	}
}

func TestFilterCacheIsBounded(t *testing.T) {
	var c filterCache
	w := item.WorkItem{Row: 5}
	for i := 0; i < maxCachedFilters+10; i++ {
		f, err := c.get(fmt.Sprintf("row_number > %d", i))
		require.NoError(t, err)
		assert.Equal(t, i < 5, f.Match(w, t0))
	}
	assert.Len(t, c.progs, maxCachedFilters)

	_, err := c.get("row_number >")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Len(t, c.progs, maxCachedFilters)
}
