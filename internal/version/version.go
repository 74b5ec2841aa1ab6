package version

// Version is the current version of tapsync.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.4.0"

// Name is the application name.
const Name = "tapsync"

// Description is a short description of the application.
const Description = "Rule-driven Singer tap-to-target sync planner and runner"
