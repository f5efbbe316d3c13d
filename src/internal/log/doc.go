// Package log provides simple leveled logging for tunroute.
//
// Route-table changes are reported from several goroutines at once (netlink
// notification readers, burst guard timers, API handlers), so every write is
// serialized behind a single mutex.
//
//	log.Infof("Best default route has changed. Refreshing dependent routes")
//	log.Warnf("Network %s is not registered, nothing to delete", network)
//
// DEBUG lines are printed only after SetVerbose(true). ERROR lines always go to
// stderr; ForceStdErr(true) sends the other levels there too. Tests capture
// output with SetOutput.
package log
