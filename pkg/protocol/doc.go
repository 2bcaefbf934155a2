// ABOUTME: Lavalink node wire protocol package
// ABOUTME: Defines the Session, message payloads and error taxonomy
// Package protocol implements the client side of the Lavalink node protocol.
//
// A Session owns one WebSocket connection to a node and a shared HTTP
// client for REST lookups. The connection is opened in the background
// when the Session is created; use WaitConnected to block until it is
// usable.
//
// Example:
//
//	session := protocol.NewSession(protocol.Config{
//	    Host:     "localhost",
//	    Port:     2333,
//	    Password: "youshallnotpass",
//	    UserID:   "123456789",
//	})
//	defer session.Close()
//	if err := session.WaitConnected(ctx); err != nil {
//	    return err
//	}
//	err := session.Send(ctx, protocol.NewStop("guild-id"))
package protocol
