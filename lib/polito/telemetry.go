package polito

import (
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("politodown.lib.polito")
