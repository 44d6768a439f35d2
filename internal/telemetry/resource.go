package telemetry

import (
	"os"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Environment variables copied onto the telemetry resource when set.
const (
	EnvComputer = "COPYCAT_COMPUTER"
	EnvInstance = "COPYCAT_INSTANCE"
)

// resourceAttrs builds resource attributes from the copycat context
// variables present in the process environment. A non-numeric
// COPYCAT_COMPUTER is ignored.
func resourceAttrs() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if v := os.Getenv(EnvComputer); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			attrs = append(attrs, attribute.Int("copycat.computer", id))
		}
	}
	if v := os.Getenv(EnvInstance); v != "" {
		attrs = append(attrs, attribute.String("copycat.instance", v))
	}
	return attrs
}
