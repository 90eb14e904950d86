package apm

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rootcause/internal/compiler"
	"github.com/roach88/rootcause/internal/rules"
)

// Source is the APM rule set as a CUE rule file. It declares the same
// rules as DefaultDescriptors and can be copied as a starting point for
// custom rule files.
//
//go:embed rules.cue
var Source string

// CompileSource compiles Source against Catalog.
func CompileSource() ([]*rules.Descriptor, error) {
	v := cuecontext.New().CompileString(Source, cuecontext.Filename("apm/rules.cue"))
	descs, err := compiler.CompileRules(v, Catalog())
	if err != nil {
		return nil, fmt.Errorf("compile built-in rules: %w", err)
	}
	return descs, nil
}
