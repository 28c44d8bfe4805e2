// Package connectable turns an implementation reference into something a
// harness can start.
//
// References take one of these forms:
//
//	image:ghcr.io/bowtie-json-schema/python-jsonschema   container image
//	python-jsonschema                                     shorthand for the image above
//	exec:/path/to/validator --flag                        local subprocess
//	direct:kaptinlin-jsonschema                           in-process validator
package connectable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/direct"
)

// ImageRepository prefixes bare implementation names.
const ImageRepository = "ghcr.io/bowtie-json-schema/"

// Connectable starts one instance of an implementation.
type Connectable interface {
	// Name identifies the implementation before it has reported metadata.
	Name() string

	// Connect launches a fresh instance and returns its transport.
	Connect(ctx context.Context) (channel.Transport, error)
}

// ErrEmptyReference is returned by Parse for a blank reference.
var ErrEmptyReference = errors.New("empty implementation reference")

// Parse interprets ref.
func Parse(ref string) (Connectable, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmptyReference
	}

	kind, rest, found := strings.Cut(ref, ":")
	if !found || strings.Contains(kind, "/") || strings.Contains(kind, ".") {
		return NewContainer(qualifyImage(ref), nil), nil
	}

	switch kind {
	case "image":
		if rest == "" {
			return nil, fmt.Errorf("%q: %w", ref, ErrEmptyReference)
		}
		return NewContainer(qualifyImage(rest), nil), nil
	case "exec":
		argv := strings.Fields(rest)
		if len(argv) == 0 {
			return nil, fmt.Errorf("%q: %w", ref, ErrEmptyReference)
		}
		return NewProcess(argv[0], argv[1:]...), nil
	case "direct":
		v, err := direct.Lookup(rest)
		if err != nil {
			return nil, err
		}
		return Direct{Validator: v}, nil
	default:
		// "name:tag" without a registry
		return NewContainer(qualifyImage(ref), nil), nil
	}
}

// ParseAll parses every reference, reporting all bad ones together.
func ParseAll(refs []string) ([]Connectable, error) {
	out := make([]Connectable, 0, len(refs))
	var errs []error
	for _, ref := range refs {
		c, err := Parse(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func qualifyImage(ref string) string {
	if strings.Contains(ref, "/") {
		return ref
	}
	return ImageRepository + ref
}

// Direct runs an in-process validator.
type Direct struct {
	Validator direct.Validator
}

// Name implements Connectable.
func (d Direct) Name() string {
	return "direct:" + d.Validator.Metadata().Name
}

// Connect implements Connectable.
func (d Direct) Connect(ctx context.Context) (channel.Transport, error) {
	return direct.NewTransport(d.Validator), nil
}
