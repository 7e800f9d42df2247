package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/aryann/difflib"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/reconfig"
)

// renderDiff prints the reconfiguration decision of every pool in either
// file followed by the changed lines of its YAML rendering.
func renderDiff(w io.Writer, current, proposed *config.Resources, excluded []string) error {
	seen := make(map[core.PoolIdentity]bool)
	for i := range proposed.Pools {
		next := &proposed.Pools[i]
		seen[next.Identity()] = true
		prev, ok := current.Pool(next.Identity())
		if !ok {
			fmt.Fprintf(w, "pool %s: CREATE\n", next.Identity())
			continue
		}
		if err := renderPool(w, prev, next, excluded); err != nil {
			return err
		}
	}
	for i := range current.Pools {
		if id := current.Pools[i].Identity(); !seen[id] {
			fmt.Fprintf(w, "pool %s: DELETE\n", id)
		}
	}
	return nil
}

func renderPool(w io.Writer, prev, next *config.PoolConfig, excluded []string) error {
	oldDesc, err := prev.Descriptor()
	if err != nil {
		return err
	}
	newDesc, err := next.Descriptor()
	if err != nil {
		return err
	}
	changes := reconfig.Diff(oldDesc, newDesc, excluded)
	fmt.Fprintf(w, "pool %s: %s\n", next.Identity(), reconfig.Decide(changes))
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		fmt.Fprintf(w, "  %s\n", c)
	}

	a, err := yamlLines(prev)
	if err != nil {
		return err
	}
	b, err := yamlLines(next)
	if err != nil {
		return err
	}
	for _, rec := range difflib.Diff(a, b) {
		if rec.Delta != difflib.Common {
			fmt.Fprintf(w, "  %s\n", rec)
		}
	}
	return nil
}

func yamlLines(p *config.PoolConfig) ([]string, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}
