// Package commands implements CLI command handlers for tunroute.
//
// Each command implements the Runner interface:
//   - Init(): Parse arguments and load configuration
//   - Run(): Execute the command
//   - Name(): Return command name for dispatch
//
// # Available Commands
//
//   - service: Run as a daemon. Installs the configured routes, keeps routes without an
//     explicit next hop on the best default route and serves the HTTP API.
//     SIGHUP reloads the configured routes; SIGINT and SIGTERM remove them and exit.
//   - routes: Print the OS forwarding table
//   - self-check: Validate the configuration and resolve every configured route
//
// # Example Usage
//
//	cmd := commands.CreateServiceCommand()
//	ctx := &commands.AppContext{
//	    ConfigPath: "/etc/tunroute/tunroute.conf",
//	}
//	if err := cmd.Init(args, ctx); err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cmd.Run(); err != nil {
//	    log.Fatalf("%v", err)
//	}
package commands
