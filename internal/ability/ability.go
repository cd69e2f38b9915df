// Package ability lists the built-in capabilities in registration order.
package ability

import (
	"buddy/internal/ability/analysis"
	"buddy/internal/ability/browsing"
	"buddy/internal/capability"
)

// Registrations returns every built-in capability. The order is the order in
// which prompts and tools are offered.
func Registrations() []capability.Registration {
	return []capability.Registration{
		browsing.Registration(),
		analysis.Registration(),
	}
}

// Register adds the built-in capabilities to b.
func Register(b *capability.Builder) *capability.Builder {
	for _, r := range Registrations() {
		b.Register(r)
	}
	return b
}
