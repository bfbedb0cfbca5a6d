package transports

import (
	"context"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/runtime"
)

// LocalTransport runs every operation in-process against a Runtime.
type LocalTransport struct {
	rt *runtime.Runtime
}

// NewLocalTransport wraps rt. Close closes rt.
func NewLocalTransport(rt *runtime.Runtime) *LocalTransport {
	return &LocalTransport{rt: rt}
}

func (t *LocalTransport) Claim(ctx context.Context, req rowleasev1.ClaimRequest) (*item.WorkItem, error) {
	r := t.rt.ClaimRequest(item.Status(req.Wanted), item.Status(req.Claimed))
	if req.Worker != "" {
		r.WorkerID = req.Worker
	}
	age, err := parseLeaseAge(req.MaxLeaseAge)
	if err != nil {
		return nil, err
	}
	if age != 0 {
		r.MaxLeaseAge = age
	}
	r.Filter = req.Filter
	r.RequiredHeaders = req.Required
	return t.rt.Coordinator().ClaimFirstAvailable(ctx, r)
}

func (t *LocalTransport) Row(ctx context.Context, row int) (*item.WorkItem, error) {
	return t.rt.Coordinator().Row(ctx, row)
}

func (t *LocalTransport) Find(ctx context.Context, field, value string) (*item.WorkItem, error) {
	return t.rt.Coordinator().Find(ctx, field, value)
}

func (t *LocalTransport) Update(ctx context.Context, row int, fields map[string]string) (*item.WorkItem, error) {
	return t.rt.Coordinator().Update(ctx, row, fields)
}

func (t *LocalTransport) Release(ctx context.Context, row int, status string) (*item.WorkItem, error) {
	return t.rt.Coordinator().Release(ctx, row, item.Status(status))
}

func (t *LocalTransport) Complete(ctx context.Context, row int, status string, fields map[string]string) (*item.WorkItem, error) {
	return t.rt.Coordinator().Complete(ctx, row, item.Status(status), fields)
}

func (t *LocalTransport) Fail(ctx context.Context, row int, status, msg string) (*item.WorkItem, error) {
	return t.rt.Coordinator().Fail(ctx, row, item.Status(status), msg)
}

func (t *LocalTransport) Append(ctx context.Context, fields map[string]string) (int, error) {
	return t.rt.Append(ctx, fields)
}

func (t *LocalTransport) InitHeader(ctx context.Context, headers []string) error {
	return t.rt.InitHeader(ctx, headers)
}

func (t *LocalTransport) Schema(ctx context.Context) (map[string]int, error) {
	return t.rt.Coordinator().Schema(ctx)
}

func (t *LocalTransport) DeadLetter(ctx context.Context, req rowleasev1.DeadLetterRequest) (rowleasev1.DeadLetterResponse, error) {
	opts := t.rt.DeadLetterOptions(item.Status(req.Input), req.LastError)
	if req.Dead != "" {
		opts.DeadStatus = item.Status(req.Dead)
	}
	if req.MaxFails > 0 {
		opts.MaxFails = req.MaxFails
	}
	if req.MaxRows > 0 {
		opts.MaxRows = req.MaxRows
	}
	res, err := t.rt.DeadLetter().Run(ctx, opts)
	return rowleasev1.DeadLetterResponse{Visited: res.Visited, DeadLettered: res.DeadLettered}, err
}

func (t *LocalTransport) Close() error { return t.rt.Close() }
