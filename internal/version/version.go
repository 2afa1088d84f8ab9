// ABOUTME: Build and product identification constants
// ABOUTME: Reported in server/hello, client/hello and startup logs
package version

// Version is overridden at build time with -ldflags "-X .../version.Version=..."
var Version = "0.1.0"

const (
	// Product names the host in handshakes and mDNS
	Product = "seqplay"

	// Manufacturer is sent in client device info
	Manufacturer = "seqplay"
)
