package bootstrap

import "go.uber.org/fx"

// Module refuses to start the app on a database that was not migrated by this build.
var Module = fx.Module("bootstrap",
	fx.Provide(NewSchemaGate),
	fx.Invoke(EnforceSchemaGate),
)
