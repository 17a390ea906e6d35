package lower

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/quarryql/quarry/internal/ir"
)

// Capability names a piece of relational surface a backend may or may not
// accept. Lowering checks the relevant capability before rendering and
// fails with UnsupportedOperationError when it is absent.
type Capability string

const (
	CapRightJoin     Capability = "join.right"
	CapFullOuterJoin Capability = "join.full"
	CapWindow        Capability = "window"
	CapSetIntersect  Capability = "setop.intersect"
	CapSetExcept     Capability = "setop.except"
)

// allCapabilities is the full surface; backends start from it and subtract.
var allCapabilities = []Capability{
	CapRightJoin,
	CapFullOuterJoin,
	CapWindow,
	CapSetIntersect,
	CapSetExcept,
}

// Dialect carries the spelling differences between SQL targets. Everything
// structural (clause order, subquery composition, aliasing) is shared; only
// these knobs vary.
type Dialect struct {
	// Name of the dialect, echoed on rendered queries.
	Name string

	// IdentQuote is the identifier quoting character, `"` or a backtick.
	IdentQuote rune

	// ConcatFunc renders string concatenation as concat(a, b) instead of
	// the || operator.
	ConcatFunc bool

	// FetchLimit renders row limits as OFFSET n ROWS FETCH NEXT m ROWS
	// ONLY instead of LIMIT m OFFSET n.
	FetchLimit bool

	// FloatCast is the type name used when integer division must be
	// promoted to true division.
	FloatCast string

	// RandomFunc is the spelling of the random() scalar.
	RandomFunc string
}

// Quote quotes an identifier, doubling embedded quote characters.
func (d Dialect) Quote(name string) string {
	q := string(d.IdentQuote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Translator renders one relation kind for a backend, overriding the shared
// lowering. It receives the printer so it can recurse into inputs.
type Translator func(p *Printer, rel ir.Relation) (string, error)

// Backend describes a lowering target: its dialect, what it can accept and
// any per-kind overrides of the shared SQL rendering.
type Backend struct {
	Name         string
	Dialect      Dialect
	Capabilities map[Capability]bool
	Translators  map[ir.Kind]Translator
}

// Supports reports whether the backend accepts the capability.
func (b *Backend) Supports(c Capability) bool {
	return b.Capabilities[c]
}

// capabilitySet builds a capability map from the full surface minus the
// named exclusions.
func capabilitySet(except ...Capability) map[Capability]bool {
	set := make(map[Capability]bool, len(allCapabilities))
	for _, c := range allCapabilities {
		set[c] = true
	}
	for _, c := range except {
		delete(set, c)
	}
	return set
}

// The process-wide registry is a convenience for callers that address
// backends by name (the CLI does); Lower itself takes the descriptor
// directly. Built-in backends register at init, after which the registry is
// effectively read-only.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Backend)
)

// Register adds a backend to the process registry. Registering a nil
// backend, an unnamed backend or a duplicate name fails.
func Register(b *Backend) error {
	if b == nil || b.Name == "" {
		return fmt.Errorf("register backend: missing name")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[b.Name]; exists {
		return fmt.Errorf("register backend: %q already registered", b.Name)
	}
	registry[b.Name] = b
	return nil
}

// Get looks a backend up by name.
func Get(name string) (*Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	return b, ok
}

// Names lists the registered backend names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
