package tools

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Call is one tool invocation requested by the model — a (name, params)
// pair plus the id the caller uses to correlate ToolResult back to it.
type Call struct {
	ID     string
	Name   string
	Params map[string]any
}

// MaxConcurrency bounds how many Parallel-category tools run at once
// within one fan-out chunk (spec.md §4.8 default: 8).
const MaxConcurrency = 8

// PermissionCheck decides whether a Call may run before the Dispatcher
// invokes it. reason is surfaced back to the model as the denied
// ToolResult's content when allowed is false.
type PermissionCheck func(call Call) (allowed bool, reason string)

// AuditRecord is called once per Call after a permission decision or an
// invocation, so callers can persist a decision trail independent of the
// ToolResult itself.
type AuditRecord func(call Call, result ToolResult)

// Dispatcher executes Call batches per spec.md §4.8's grouping algorithm.
// It never returns an error for an individual call's failure — every Call
// always yields exactly one ToolResult, in the batch's input order.
type Dispatcher struct {
	registry *Registry

	// Checker, when set, gates every call before Handler runs. Nil means
	// every call is allowed — the zero value keeps existing callers and
	// tests working unchanged.
	Checker PermissionCheck
	// Audit, when set, observes the final ToolResult of every call that is
	// denied by Checker or reaches its Handler. Unknown-tool,
	// invalid-argument and cancelled results are not reported to it.
	Audit AuditRecord
}

// NewDispatcher wires a Dispatcher to the Registry it resolves tool names
// against.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch runs calls to completion and returns one ToolResult per call, in
// the same order as calls. cancelled is checked at every suspension point
// named in spec.md §5 (start of each group, before each chunk, between
// tools in a Sequential group); once it reports true, every remaining call
// resolves to Status Cancelled without being invoked. A batch of exactly one
// call is invoked directly, without consulting cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []Call, cancelled func() bool) []ToolResult {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	results := make([]ToolResult, len(calls))

	if len(calls) == 1 {
		results[0] = d.invoke(ctx, calls[0])
		return results
	}

	for _, grp := range groupByMode(calls, d.registry) {
		if cancelled() {
			fillCancelled(results, calls, grp.indices)
			continue
		}
		if grp.mode == ModeSequential {
			idx := grp.indices[0]
			if cancelled() {
				results[idx] = ToolResult{CallID: calls[idx].ID, Status: StatusCancelled, CancelReason: "cancelled"}
				continue
			}
			results[idx] = d.invoke(ctx, calls[idx])
			continue
		}

		for chunkStart := 0; chunkStart < len(grp.indices); chunkStart += MaxConcurrency {
			if cancelled() {
				fillCancelled(results, calls, grp.indices[chunkStart:])
				break
			}
			chunkEnd := chunkStart + MaxConcurrency
			if chunkEnd > len(grp.indices) {
				chunkEnd = len(grp.indices)
			}
			chunk := grp.indices[chunkStart:chunkEnd]

			eg, egCtx := errgroup.WithContext(ctx)
			for _, idx := range chunk {
				idx := idx
				eg.Go(func() error {
					results[idx] = d.invoke(egCtx, calls[idx])
					return nil
				})
			}
			_ = eg.Wait() // invoke() never returns a Go error; every result already set
		}
	}
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, call Call) ToolResult {
	def, err := d.registry.mustGet(call.Name)
	if err != nil {
		return ToolResult{CallID: call.ID, Status: StatusError, Content: []ContentBlock{TextBlock(err.Error())}}
	}
	if err := def.Validate(call.Params); err != nil {
		return ToolResult{CallID: call.ID, Status: StatusError, Content: []ContentBlock{TextBlock(err.Error())}}
	}

	if d.Checker != nil {
		if allowed, reason := d.Checker(call); !allowed {
			result := ToolResult{CallID: call.ID, Status: StatusError, Content: []ContentBlock{TextBlock("permission denied: " + reason)}}
			d.recordAudit(call, result)
			return result
		}
	}

	start := time.Now()
	result, err := def.Handler(ctx, call.Params)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		result = errorResult(call.ID, err)
	}
	result.CallID = call.ID
	result.ExecutionTimeMs = elapsed
	if result.Status == "" {
		result.Status = StatusSuccess
	}
	d.recordAudit(call, result)
	return result
}

func (d *Dispatcher) recordAudit(call Call, result ToolResult) {
	if d.Audit != nil {
		d.Audit(call, result)
	}
}

type callGroup struct {
	mode    ExecutionMode
	indices []int
}

// groupByMode implements spec.md §4.8 step 2: scan in order, building
// contiguous groups where consecutive Parallel tools form one group and
// any Sequential tool forms its own singleton group.
func groupByMode(calls []Call, registry *Registry) []callGroup {
	var groups []callGroup
	for i, c := range calls {
		mode := ModeSequential
		if def, ok := registry.Get(c.Name); ok {
			mode = def.Metadata.Category.executionMode()
		}
		if mode == ModeSequential {
			groups = append(groups, callGroup{mode: ModeSequential, indices: []int{i}})
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].mode == ModeParallel {
			groups[n-1].indices = append(groups[n-1].indices, i)
			continue
		}
		groups = append(groups, callGroup{mode: ModeParallel, indices: []int{i}})
	}
	return groups
}

func fillCancelled(results []ToolResult, calls []Call, indices []int) {
	for _, idx := range indices {
		if results[idx].Status == "" {
			results[idx] = ToolResult{CallID: calls[idx].ID, Status: StatusCancelled, CancelReason: "cancelled"}
		}
	}
}
