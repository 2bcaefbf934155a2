// ABOUTME: mDNS node discovery package
// ABOUTME: Discover and advertise audio nodes on the local network
// Package discovery finds audio nodes advertised over mDNS.
//
// Example:
//
//	m := discovery.NewManager(discovery.Config{})
//	defer m.Stop()
//	for _, n := range m.Discover() {
//	    fmt.Printf("Found: %s at %s\n", n.Name, n.Address())
//	}
package discovery
