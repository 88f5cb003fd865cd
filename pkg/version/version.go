// Package version reports which build of the server is running.
package version

import "runtime/debug"

// AppName identifies the service in version strings and log lines.
const AppName = "conclave"

// commit can be injected at build time with
// -ldflags "-X github.com/conclave-labs/conclave/pkg/version.commit=<rev>"
// for builds that have no VCS metadata, such as container image builds.
var commit string

// GitCommit is the short revision this binary was built from. "dev" when
// neither the ldflags injection nor build info provides one (go test,
// builds outside a checkout).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if commit != "" {
		return shortRev(commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return shortRev(setting.Value)
		}
	}
	return "dev"
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "conclave/<revision>" for health responses and startup logs.
func Full() string {
	return AppName + "/" + GitCommit
}
