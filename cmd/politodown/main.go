package main

import (
	"os"

	"politodown/cmd/politodown/commands"
	"politodown/lib/serviceutil"
	"politodown/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	// telemetry is opt-in, running without a telemetry.json5 is fine
	_, err := telemetry.SetupFromEnv(ctx, "politodown")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to initialize telemetry", err)
	}
	telemetry.InitSlog(false)
	commands.ExecuteContext(ctx)
}
