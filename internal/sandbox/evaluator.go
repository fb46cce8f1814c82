// Package sandbox runs untrusted transform scripts against a submission's
// data tree. Scripts execute inside an embedded interpreter with no access
// to the standard library, the filesystem or the network; the only inputs
// are the two per-call bindings and the only output is the yielded data
// tree.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

const (
	// DefaultTimeout bounds a transform when the caller passes none.
	DefaultTimeout = 500 * time.Millisecond

	bindingImport = "transform"
)

// ErrTimeout reports that the script ran past its wall-clock limit.
var ErrTimeout = errors.New("transform timed out")

// Evaluator executes transform scripts. It holds no per-call state and is
// safe for concurrent use; every Evaluate call builds a fresh interpreter so
// nothing leaks between requests.
type Evaluator struct {
	Timeout time.Duration
}

func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{Timeout: timeout}
}

// Evaluate runs script with two bindings: the originating submission (as a
// plain data tree, copied so the script cannot reach the caller's value) and
// the pre-transform data. The script sees them as the local variables
// `submission` and `data`; whatever `data` holds when the script finishes is
// the result. Any script error, panic or timeout is returned to the caller,
// who keeps the pre-transform data.
func (e *Evaluator) Evaluate(ctx context.Context, script string, submission, data map[string]any) (result map[string]any, err error) {
	defer func() {
		if v := recover(); v != nil {
			result = nil
			err = fmt.Errorf("transform panic: %v", v)
		}
	}()

	if strings.TrimSpace(script) == "" {
		return domain.CopyTree(data), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	submissionCopy := domain.CopyTree(submission)
	dataCopy := domain.CopyTree(data)

	var yielded map[string]any
	i := interp.New(interp.Options{})
	exports := interp.Exports{
		bindingImport + "/" + bindingImport: {
			"Submission": reflect.ValueOf(func() map[string]any { return submissionCopy }),
			"Data":       reflect.ValueOf(func() map[string]any { return dataCopy }),
			"Yield":      reflect.ValueOf(func(v map[string]any) { yielded = v }),
		},
	}
	if err := i.Use(exports); err != nil {
		return nil, fmt.Errorf("bind transform inputs: %w", err)
	}
	// The import must be evaluated on its own: a source mixing an import
	// clause with bare statements is parsed in declaration mode and never
	// runs. Importing first leaves the interpreter in statement mode for
	// the script itself.
	if _, err := i.Eval(`import "` + bindingImport + `"`); err != nil {
		return nil, fmt.Errorf("bind transform inputs: %w", err)
	}

	src := buildProgram(script)
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("transform: %w", err)
	}
	if yielded == nil {
		return dataCopy, nil
	}
	return yielded, nil
}

// buildProgram wraps the user script so that `data` and `submission` exist
// as locals and the final value of `data` is handed back through the Yield
// binding. The blank assignments keep scripts that touch only one of the
// bindings valid. The `transform` import is already evaluated by the
// caller; the program itself is pure statements.
func buildProgram(script string) string {
	var b strings.Builder
	b.WriteString("submission := ")
	b.WriteString(bindingImport)
	b.WriteString(".Submission()\n")
	b.WriteString("data := ")
	b.WriteString(bindingImport)
	b.WriteString(".Data()\n")
	b.WriteString("_ = submission\n_ = data\n")
	b.WriteString(script)
	b.WriteString("\n")
	b.WriteString(bindingImport)
	b.WriteString(".Yield(data)\n")
	return b.String()
}
