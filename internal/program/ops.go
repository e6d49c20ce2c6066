package program

import (
	"fmt"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
)

// reduceFn builds the reducer for op. The operand is value when the spec
// sets one, the payload otherwise. A reducer that cannot apply its
// operand panics; the step is reported and the store keeps its value.
func reduceFn(op string, hasValue bool, value any) (func(cur, payload any) any, error) {
	operand := func(payload any) any {
		if hasValue {
			return value
		}
		return payload
	}

	switch op {
	case "set":
		return func(_, payload any) any {
			return operand(payload)
		}, nil
	case "add":
		return func(cur, payload any) any {
			a, err := number(cur)
			if err != nil {
				panic(fmt.Errorf("add: store value %w", err))
			}
			b, err := number(operand(payload))
			if err != nil {
				panic(fmt.Errorf("add: operand %w", err))
			}
			return a + b
		}, nil
	case "append":
		return func(cur, payload any) any {
			out, err := appended(cur, operand(payload))
			if err != nil {
				panic(fmt.Errorf("append: store value %w", err))
			}
			return out
		}, nil
	default:
		return nil, fmt.Errorf("unsupported reducer op %q", op)
	}
}

// combine derives the store declared by c over inputs.
func combine(c ir.CombineSpec, inputs []*rill.Store[any]) (*rill.Store[any], error) {
	switch c.Op {
	case "list":
		all := rill.CombineAll(inputs, rill.WithName(c.Name+".list"))
		return rill.Map(all, func(vs []any) any { return vs }, rill.WithName(c.Name), deepEqual), nil
	case "sum":
		all := rill.CombineAll(inputs, rill.WithName(c.Name+".sum"))
		return rill.Map(all, func(vs []any) any {
			var total float64
			for i, v := range vs {
				n, err := number(v)
				if err != nil {
					panic(fmt.Errorf("sum: %s: %w", c.Stores[i], err))
				}
				total += n
			}
			return total
		}, rill.WithName(c.Name), deepEqual), nil
	case "object":
		byName := make(map[string]*rill.Store[any], len(inputs))
		for i, s := range inputs {
			byName[c.Stores[i]] = s
		}
		all := rill.CombineMap(byName, rill.WithName(c.Name+".object"))
		return rill.Map(all, func(m map[string]any) any { return m }, rill.WithName(c.Name), deepEqual), nil
	default:
		return nil, fmt.Errorf("combine %s: unsupported op %q", c.Name, c.Op)
	}
}

// sampleFn returns the sample function for mode. The empty mode forwards
// the source value, or the clock payload without a source.
func sampleFn(mode string) func(source, clock any) any {
	switch mode {
	case "source":
		return func(source, _ any) any { return source }
	case "clock":
		return func(_, clock any) any { return clock }
	case "pair":
		return func(source, clock any) any {
			return map[string]any{"source": source, "clock": clock}
		}
	default:
		return nil
	}
}

// attachParams returns the params mapping for mode. The empty mode
// forwards the source value, or the params without a source.
func attachParams(mode string) func(params, source any) any {
	switch mode {
	case "source":
		return func(_, source any) any { return source }
	case "params":
		return func(params, _ any) any { return params }
	case "pair":
		return func(params, source any) any {
			return map[string]any{"params": params, "source": source}
		}
	default:
		return nil
	}
}

// effectEvent derives the plain-valued event of fx called name.
func effectEvent(fx *rill.Effect[any, any], name string) rill.Source[any] {
	switch name {
	case "done":
		return rill.MapEvent(fx.Done(), func(d rill.DoneResult[any, any]) any {
			return map[string]any{"params": d.Params, "result": d.Result}
		})
	case "fail":
		return rill.MapEvent(fx.Fail(), func(f rill.FailResult[any]) any {
			return map[string]any{"params": f.Params, "error": errorText(f.Error)}
		})
	case "finally":
		return rill.MapEvent(fx.Finally(), func(f rill.Finally[any, any]) any {
			out := map[string]any{"status": string(f.Status), "params": f.Params}
			if f.Status == rill.StatusDone {
				out["result"] = f.Result
			} else {
				out["error"] = errorText(f.Error)
			}
			return out
		})
	case "doneData":
		return fx.DoneData()
	case "failData":
		return rill.MapEvent(fx.FailData(), func(err error) any { return errorText(err) })
	default:
		panic(fmt.Sprintf("unknown effect event %q", name))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
