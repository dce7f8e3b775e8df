// Package sandbox runs synthesized Go procedures inside a yaegi interpreter
// with an import whitelist and a pre-bound capability package. Interpretation
// avoids compiling untrusted-ish generated code while keeping execution
// synchronous and single-shot; retry and fallback live in the controller.
package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"gridsense/internal/logging"
	"gridsense/internal/table"
)

// ExecutionError reports a procedure that both failed and left no usable
// output binding behind.
type ExecutionError struct {
	Message string
	Trace   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("procedure execution failed: %s", e.Message)
}

// Executor interprets analysis procedures.
type Executor struct {
	allowedImports map[string]bool
	timeout        time.Duration
}

// NewExecutor creates an executor with the fixed import whitelist and the
// given per-run timeout budget (<= 0 means 30s).
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		timeout: timeout,
		allowedImports: map[string]bool{
			"fmt":     true,
			"math":    true,
			"sort":    true,
			"strings": true,
			"strconv": true,

			analysisImportPath: true,

			// Blocked by omission: os, os/exec, net, net/http, syscall,
			// unsafe, io, time.
		},
	}
}

// Execute runs a procedure against a private copy of the table and returns
// its findings. The copy is augmented with date-part columns before the run,
// so a failed execution can never taint the caller's table. The procedure
// must define `func Analyze() map[string]interface{}`; when that is missing
// or panics, the `main.Result` output binding is tried before giving up with
// an *ExecutionError. Timeouts are execution failures, not process errors.
func (ex *Executor) Execute(ctx context.Context, procedure string, t *table.Table) (map[string]interface{}, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "Execute")
	defer timer.Stop()

	if err := ex.validateImports(procedure); err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}

	private := t.Clone()
	augmentDateParts(private)
	b := newBindings(private)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ex.timeout)
		defer cancel()
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if err := i.Use(b.exports()); err != nil {
		return nil, fmt.Errorf("failed to bind analysis package: %w", err)
	}

	type outcome struct {
		result map[string]interface{}
		err    *ExecutionError
	}
	done := make(chan outcome, 1)

	go func() {
		result, execErr := ex.run(i, wrapProcedure(procedure))
		done <- outcome{result: result, err: execErr}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logging.Sandbox("execution failed: %s", out.err.Message)
			return nil, out.err
		}
		logging.SandboxDebug("execution produced %d result keys", len(out.result))
		return out.result, nil
	case <-ctx.Done():
		logging.Sandbox("execution timed out after %v", ex.timeout)
		return nil, &ExecutionError{Message: fmt.Sprintf("execution timed out: %v", ctx.Err())}
	}
}

// run evaluates the procedure and invokes its entry point, recovering panics
// from interpreted code into ExecutionErrors.
func (ex *Executor) run(i *interp.Interpreter, code string) (result map[string]interface{}, execErr *ExecutionError) {
	defer func() {
		if r := recover(); r != nil {
			// Interpreted panic: the Result binding may still hold findings.
			if res, ok := ex.readResultBinding(i); ok {
				result, execErr = res, nil
				return
			}
			result = nil
			execErr = &ExecutionError{
				Message: fmt.Sprintf("procedure panicked: %v", r),
				Trace:   string(debug.Stack()),
			}
		}
	}()

	if _, err := i.Eval(code); err != nil {
		return nil, &ExecutionError{Message: fmt.Sprintf("procedure evaluation failed: %v", err)}
	}

	entry, err := i.Eval("main.Analyze")
	if err != nil {
		if res, ok := ex.readResultBinding(i); ok {
			return res, nil
		}
		return nil, &ExecutionError{Message: "procedure defines neither Analyze() nor a Result binding"}
	}

	analyze, ok := entry.Interface().(func() map[string]interface{})
	if !ok {
		return nil, &ExecutionError{
			Message: "Analyze has the wrong signature (want func() map[string]interface{})",
		}
	}

	return analyze(), nil
}

// readResultBinding looks up the fallback output variable main.Result.
func (ex *Executor) readResultBinding(i *interp.Interpreter) (map[string]interface{}, bool) {
	v, err := i.Eval("main.Result")
	if err != nil {
		return nil, false
	}
	if m, ok := v.Interface().(map[string]interface{}); ok && m != nil {
		return m, true
	}
	return nil, false
}

// validateImports rejects procedures importing outside the whitelist.
func (ex *Executor) validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, ")") {
			inBlock = false
			continue
		}

		if inBlock {
			imports = append(imports, parseImportLine(trimmed))
		} else if strings.HasPrefix(trimmed, "import ") {
			imports = append(imports, parseImportLine(strings.TrimPrefix(trimmed, "import ")))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if pkg == "" {
			continue
		}
		if !ex.allowedImports[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// parseImportLine extracts the import path from one import spec, tolerating
// aliases and comments.
func parseImportLine(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	// Aliased import: take the quoted part.
	if idx := strings.Index(line, `"`); idx >= 0 {
		line = line[idx:]
	}
	return strings.Trim(line, `"`)
}

// wrapProcedure ensures the procedure is a complete main package.
func wrapProcedure(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
