// Package bootstrap runs an application through its lifecycle: start the
// registered components, run configure callbacks, check readiness, block on
// SIGINT/SIGTERM (or run a finite task), then stop components in reverse
// order within a graceful timeout.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(pool)
//	app.RegisterComponent(httpServer)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
