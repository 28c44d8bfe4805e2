package direct

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/kaptinlin/jsonschema"

	"github.com/roach88/bowtie/internal/protocol"
)

const kaptinlinModule = "github.com/kaptinlin/jsonschema"

// Kaptinlin validates with github.com/kaptinlin/jsonschema.
type Kaptinlin struct{}

// Metadata implements Validator.
func (Kaptinlin) Metadata() protocol.Implementation {
	return protocol.Implementation{
		Name:            "kaptinlin-jsonschema",
		Language:        "go",
		Version:         moduleVersion(kaptinlinModule),
		Homepage:        "https://github.com/kaptinlin/jsonschema",
		Issues:          "https://github.com/kaptinlin/jsonschema/issues",
		Source:          "https://github.com/kaptinlin/jsonschema",
		Dialects:        []string{"https://json-schema.org/draft/2020-12/schema"},
		LanguageVersion: runtime.Version(),
		OS:              runtime.GOOS,
	}
}

// Run implements Validator.
func (k Kaptinlin) Run(dialect string, run protocol.Run) (response any) {
	defer func() {
		if r := recover(); r != nil {
			response = erroredResponse(run, fmt.Sprintf("panic: %v", r), string(debug.Stack()))
		}
	}()

	compiler := jsonschema.NewCompiler()
	for uri, raw := range run.Case.Registry {
		if _, err := compiler.Compile(raw, uri); err != nil {
			return erroredResponse(run, fmt.Sprintf("compile registry schema %s: %v", uri, err), "")
		}
	}
	schema, err := compiler.Compile(run.Case.Schema)
	if err != nil {
		return erroredResponse(run, fmt.Sprintf("compile schema: %v", err), "")
	}

	results := make([]map[string]any, 0, len(run.Case.Tests))
	for _, test := range run.Case.Tests {
		eval := schema.ValidateJSON(test.Instance)
		results = append(results, map[string]any{"valid": eval.IsValid()})
	}
	return map[string]any{"seq": run.Seq, "results": results}
}

func erroredResponse(run protocol.Run, message, traceback string) map[string]any {
	details := map[string]any{"message": message}
	if traceback != "" {
		details["traceback"] = traceback
	}
	return map[string]any{"seq": run.Seq, "errored": true, "context": details}
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return "unknown"
}
