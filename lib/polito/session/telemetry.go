package session

import (
	"politodown/lib/restyutil"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("politodown.lib.polito.session")

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables dumping every http exchange of any
// session to the given output, for debugging the portal's redirect
// chains.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

// outputProxy defers the output lookup to write time so sessions can
// be constructed before the output is configured.
type outputProxy struct{}

func (outputProxy) Write(id string, contents string) {
	if restyInstrumentOutput == nil {
		return
	}
	restyInstrumentOutput.Write(id, contents)
}
