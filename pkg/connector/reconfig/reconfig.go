// Package reconfig decides how a pool must react to a configuration change.
//
// Attributes fall into two groups. Soft attributes (sizing, timeouts, retry
// policy, matching, connection usage limits, reclaim, fail-all and the
// component/transactional flags) can be absorbed by the live physical pool
// and factory. Hard attributes (pooling, thread association, partitioning,
// lazy enlistment and association, transaction support, adapter module,
// connection definition and security maps) and every factory property not
// in the excluded set change how the factory itself behaves, so the pool has
// to be recreated.
package reconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// ChangeKind classifies one difference between two descriptors.
type ChangeKind string

const (
	KindSoft             ChangeKind = "soft"
	KindHard             ChangeKind = "hard"
	KindProperty         ChangeKind = "property"
	KindExcludedProperty ChangeKind = "excluded_property"
)

// Change is one difference between two descriptors.
type Change struct {
	Field string
	Old   string
	New   string
	Kind  ChangeKind
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s: %q -> %q", c.Kind, c.Field, c.Old, c.New)
}

type attribute struct {
	name string
	hard bool
	get  func(d *core.PoolDescriptor) interface{}
}

var attributes = []attribute{
	{"steady_pool_size", false, func(d *core.PoolDescriptor) interface{} { return d.SteadyPoolSize }},
	{"max_pool_size", false, func(d *core.PoolDescriptor) interface{} { return d.MaxPoolSize }},
	{"pool_resize_quantity", false, func(d *core.PoolDescriptor) interface{} { return d.PoolResizeQuantity }},
	{"idle_timeout", false, func(d *core.PoolDescriptor) interface{} { return d.IdleTimeout }},
	{"max_wait_time", false, func(d *core.PoolDescriptor) interface{} { return d.MaxWaitTime }},
	{"leak_tracing_timeout", false, func(d *core.PoolDescriptor) interface{} { return d.LeakTracingTimeout }},
	{"validate_at_most_once_period", false, func(d *core.PoolDescriptor) interface{} { return d.ValidateAtMostOncePeriod }},
	{"creation_retry_attempts", false, func(d *core.PoolDescriptor) interface{} { return d.CreationRetry.Attempts }},
	{"creation_retry_interval", false, func(d *core.PoolDescriptor) interface{} { return d.CreationRetry.Interval }},
	{"match_connections", false, func(d *core.PoolDescriptor) interface{} { return d.MatchConnections }},
	{"max_connection_usage", false, func(d *core.PoolDescriptor) interface{} { return d.MaxConnectionUsage }},
	{"connection_reclaim", false, func(d *core.PoolDescriptor) interface{} { return d.ConnectionReclaim }},
	{"fail_all_connections", false, func(d *core.PoolDescriptor) interface{} { return d.FailAllConnections }},
	{"non_component", false, func(d *core.PoolDescriptor) interface{} { return d.NonComponent }},
	{"non_transactional", false, func(d *core.PoolDescriptor) interface{} { return d.NonTransactional }},
	{"description", false, func(d *core.PoolDescriptor) interface{} { return d.Description }},

	{"pooling", true, func(d *core.PoolDescriptor) interface{} { return d.PoolingEnabled }},
	{"associate_with_thread", true, func(d *core.PoolDescriptor) interface{} { return d.AssociateWithThread }},
	{"partitioned", true, func(d *core.PoolDescriptor) interface{} { return d.Partitioned }},
	{"lazy_enlist", true, func(d *core.PoolDescriptor) interface{} { return d.LazyEnlist }},
	{"lazy_associate", true, func(d *core.PoolDescriptor) interface{} { return d.LazyAssociate }},
	{"transaction_support", true, func(d *core.PoolDescriptor) interface{} { return d.TransactionSupport }},
	{"adapter_module", true, func(d *core.PoolDescriptor) interface{} { return d.AdapterModule }},
	{"connection_definition", true, func(d *core.PoolDescriptor) interface{} { return d.ConnectionDefinition }},
}

// Diff lists every difference between old and proposed. Property names are
// compared ignoring case; excluded properties are reported with
// KindExcludedProperty.
func Diff(old, proposed *core.PoolDescriptor, excluded []string) []Change {
	var changes []Change

	for _, a := range attributes {
		o, n := fmt.Sprint(a.get(old)), fmt.Sprint(a.get(proposed))
		if o == n {
			continue
		}
		kind := KindSoft
		if a.hard {
			kind = KindHard
		}
		changes = append(changes, Change{Field: a.name, Old: o, New: n, Kind: kind})
	}

	if !core.SecurityMapsEqual(old.SecurityMaps, proposed.SecurityMaps) {
		changes = append(changes, Change{
			Field: "security_maps",
			Old:   fmt.Sprintf("%d maps", len(old.SecurityMaps)),
			New:   fmt.Sprintf("%d maps", len(proposed.SecurityMaps)),
			Kind:  KindHard,
		})
	}

	return append(changes, diffProperties(old.Properties, proposed.Properties, excluded)...)
}

func diffProperties(old, proposed core.Properties, excluded []string) []Change {
	o, n := old.Normalized(), proposed.Normalized()

	names := make(map[string]bool, len(o)+len(n))
	for k := range o {
		names[k] = true
	}
	for k := range n {
		names[k] = true
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []Change
	for _, name := range sorted {
		ov, inOld := o[name]
		nv, inNew := n[name]
		if inOld == inNew && ov == nv {
			continue
		}
		kind := KindProperty
		if isExcluded(excluded, name) {
			kind = KindExcludedProperty
		}
		changes = append(changes, Change{Field: name, Old: ov, New: nv, Kind: kind})
	}
	return changes
}

// Decide maps a list of changes to the action they require.
func Decide(changes []Change) core.ReconfigAction {
	action := core.NoChange
	for _, c := range changes {
		switch c.Kind {
		case KindProperty, KindHard:
			return core.Recreate
		case KindSoft:
			action = core.UpdateAttributes
		}
	}
	return action
}

// Compare classifies the change from old to proposed.
func Compare(old, proposed *core.PoolDescriptor, excluded []string) core.ReconfigAction {
	return Decide(Diff(old, proposed, excluded))
}

// ApplyAttributes copies soft attributes and excluded property values from
// proposed onto live. It returns the excluded properties whose values
// changed, in the form they should be applied to the live factory. An
// excluded property missing from proposed is dropped from live but not
// returned: factories cannot unset a property, so the live factory keeps
// its value until the pool is recreated.
func ApplyAttributes(live, proposed *core.PoolDescriptor, excluded []string) []core.Property {
	live.Description = proposed.Description
	live.SteadyPoolSize = proposed.SteadyPoolSize
	live.MaxPoolSize = proposed.MaxPoolSize
	live.PoolResizeQuantity = proposed.PoolResizeQuantity
	live.IdleTimeout = proposed.IdleTimeout
	live.MaxWaitTime = proposed.MaxWaitTime
	live.LeakTracingTimeout = proposed.LeakTracingTimeout
	live.ValidateAtMostOncePeriod = proposed.ValidateAtMostOncePeriod
	live.CreationRetry = proposed.CreationRetry
	live.MatchConnections = proposed.MatchConnections
	live.MaxConnectionUsage = proposed.MaxConnectionUsage
	live.ConnectionReclaim = proposed.ConnectionReclaim
	live.FailAllConnections = proposed.FailAllConnections
	live.NonComponent = proposed.NonComponent
	live.NonTransactional = proposed.NonTransactional

	var changed []core.Property
	for _, c := range diffProperties(live.Properties, proposed.Properties, excluded) {
		if c.Kind != KindExcludedProperty {
			continue
		}
		if _, ok := proposed.Properties.Get(c.Field); !ok {
			live.Properties = live.Properties.Without([]string{c.Field})
			continue
		}
		name := c.Field
		for _, p := range proposed.Properties {
			if strings.EqualFold(p.Name, c.Field) {
				name = p.Name
			}
		}
		live.Properties = live.Properties.Set(name, c.New)
		changed = append(changed, core.Property{Name: name, Value: c.New})
	}
	return changed
}

func isExcluded(excluded []string, name string) bool {
	for _, e := range excluded {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}
