// ABOUTME: Version information for lavago
// ABOUTME: Sent to nodes as the client name and shown by the CLI
package version

// Version can be overridden at build time with
// -ldflags "-X github.com/lavago/lavago/internal/version.Version=1.2.3".
var Version = "0.1.0"

const (
	Product = "lavago"
	Vendor  = "lavago"
)

// ClientName is the Client-Name header value sent to nodes.
func ClientName() string {
	return Product + "/" + Version
}
