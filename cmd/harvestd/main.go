package main

import (
	"context"

	"stockharvest-backend/cmd/harvestd/commands"
	"stockharvest-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.SetupFromEnv(ctx, "harvestd")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
