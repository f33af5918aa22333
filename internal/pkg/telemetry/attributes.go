package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the capture and persistence paths.
const (
	KeySessionID     = attribute.Key("session.id")
	KeyProducerID    = attribute.Key("producer.id")
	KeyDemarcationID = attribute.Key("demarcation.id")
	KeyAreaHectares  = attribute.Key("demarcation.area_ha")
	KeyPointCount    = attribute.Key("demarcation.points")
)
