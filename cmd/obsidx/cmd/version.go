package cmd

// Version is the CLI version, overridden at build time via
// -ldflags "-X github.com/obsidx/obsidx/cmd/obsidx/cmd.Version=...".
var Version = "dev"
