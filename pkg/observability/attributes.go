package observability

import "go.opentelemetry.io/otel/attribute"

// Coherence semantic convention attributes.
var (
	AttrOperation       = attribute.Key("coherence.operation")
	AttrProjectID       = attribute.Key("coherence.project.id")
	AttrWeightProfile   = attribute.Key("coherence.weight_profile")
	AttrCacheHit        = attribute.Key("coherence.cache.hit")
	AttrGamingViolation = attribute.Key("coherence.gaming.violation")
	AttrAlertTransition = attribute.Key("coherence.alert.transition")
	AttrAction          = attribute.Key("coherence.recalculation.action")
)
