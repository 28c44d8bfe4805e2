// Package dialect holds the static registry of JSON Schema dialects.
//
// A Dialect is identified by its meta-schema URI. Dialects are ordered by
// first publication date, which is what "latest" means throughout bowtie.
package dialect

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownDialect is returned by Lookup when no registered dialect matches.
var ErrUnknownDialect = errors.New("unknown dialect")

// Dialect identifies one JSON Schema specification version.
type Dialect struct {
	URI        string
	ShortName  string
	PrettyName string

	// FirstPublished orders dialects; later dates are newer.
	FirstPublished time.Time

	// HasBooleanSchemas is true from draft 6 onwards.
	HasBooleanSchemas bool

	// Aliases are extra lookup keys (e.g. "draft2020-12").
	Aliases []string
}

// Top returns a schema every instance is valid under.
func (d Dialect) Top() json.RawMessage {
	if d.HasBooleanSchemas {
		return json.RawMessage(`true`)
	}
	return json.RawMessage(`{}`)
}

// Bottom returns a schema no instance is valid under.
func (d Dialect) Bottom() json.RawMessage {
	if d.HasBooleanSchemas {
		return json.RawMessage(`false`)
	}
	if d.ShortName == "draft3" {
		return json.RawMessage(`{"disallow": ["any"]}`)
	}
	return json.RawMessage(`{"not": {}}`)
}

// Less reports whether d was published before other.
func (d Dialect) Less(other Dialect) bool {
	return d.FirstPublished.Before(other.FirstPublished)
}

func (d Dialect) String() string {
	return d.PrettyName
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

var known = []Dialect{
	{
		URI:               "https://json-schema.org/draft/2020-12/schema",
		ShortName:         "2020-12",
		PrettyName:        "Draft 2020-12",
		FirstPublished:    date("2020-12-08"),
		HasBooleanSchemas: true,
		Aliases:           []string{"draft2020-12", "202012"},
	},
	{
		URI:               "https://json-schema.org/draft/2019-09/schema",
		ShortName:         "2019-09",
		PrettyName:        "Draft 2019-09",
		FirstPublished:    date("2019-09-16"),
		HasBooleanSchemas: true,
		Aliases:           []string{"draft2019-09", "201909"},
	},
	{
		URI:               "http://json-schema.org/draft-07/schema#",
		ShortName:         "draft7",
		PrettyName:        "Draft 7",
		FirstPublished:    date("2018-03-19"),
		HasBooleanSchemas: true,
		Aliases:           []string{"7", "draft-07"},
	},
	{
		URI:               "http://json-schema.org/draft-06/schema#",
		ShortName:         "draft6",
		PrettyName:        "Draft 6",
		FirstPublished:    date("2017-04-21"),
		HasBooleanSchemas: true,
		Aliases:           []string{"6", "draft-06"},
	},
	{
		URI:            "http://json-schema.org/draft-04/schema#",
		ShortName:      "draft4",
		PrettyName:     "Draft 4",
		FirstPublished: date("2013-01-31"),
		Aliases:        []string{"4", "draft-04"},
	},
	{
		URI:            "http://json-schema.org/draft-03/schema#",
		ShortName:      "draft3",
		PrettyName:     "Draft 3",
		FirstPublished: date("2010-11-22"),
		Aliases:        []string{"3", "draft-03"},
	},
}

// Known returns every registered dialect, newest first.
func Known() []Dialect {
	out := make([]Dialect, len(known))
	copy(out, known)
	return Sorted(out)
}

// Latest returns the most recently published registered dialect.
func Latest() Dialect {
	return Known()[0]
}

// Sorted orders dialects newest first. The input slice is sorted in place
// and returned for convenience.
func Sorted(dialects []Dialect) []Dialect {
	sort.SliceStable(dialects, func(i, j int) bool {
		return dialects[j].Less(dialects[i])
	})
	return dialects
}

// Lookup resolves a URI, short name or alias to a registered dialect.
// URIs match with or without a trailing "#".
func Lookup(name string) (Dialect, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return Dialect{}, fmt.Errorf("%w: empty name", ErrUnknownDialect)
	}
	bare := strings.TrimSuffix(key, "#")
	for _, d := range known {
		if strings.TrimSuffix(d.URI, "#") == bare {
			return d, nil
		}
		if strings.EqualFold(d.ShortName, key) {
			return d, nil
		}
		for _, alias := range d.Aliases {
			if strings.EqualFold(alias, key) {
				return d, nil
			}
		}
	}
	return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
}

// Supports reports whether uris (as declared by an implementation) include d.
func (d Dialect) Supports(uris []string) bool {
	want := strings.TrimSuffix(d.URI, "#")
	for _, uri := range uris {
		if strings.TrimSuffix(uri, "#") == want {
			return true
		}
	}
	return false
}
