package direct

import (
	"fmt"
	"sort"
)

var validators = map[string]Validator{
	"kaptinlin-jsonschema": Kaptinlin{},
}

// Lookup returns the named in-process validator.
func Lookup(name string) (Validator, error) {
	v, ok := validators[name]
	if !ok {
		return nil, fmt.Errorf("no direct implementation named %q (known: %v)", name, Names())
	}
	return v, nil
}

// Names lists the available in-process validators.
func Names() []string {
	names := make([]string, 0, len(validators))
	for name := range validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
