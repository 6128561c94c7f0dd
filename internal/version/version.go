package version

import "fmt"

// Build metadata, overridden with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// UserAgent is sent on outbound reference feed requests.
func UserAgent() string {
	return fmt.Sprintf("zecwatcher/%s", Version)
}
