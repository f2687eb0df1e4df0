// Package chat is the realtime hub of the relay.
//
// Browsers connect over a websocket (see Hub.ServeWS) and exchange JSON
// frames of the form {"event":"chat message","args":[...]}. On connect a
// client first receives the stored history, one frame per message in id
// order, and only then live traffic. Every inbound chat message is written
// to the Store before it is broadcast, so a broadcast always carries the
// id the store assigned.
//
// Handshake claims: the username comes from the "username" query parameter
// or the X-Username header and is trusted as-is. A reconnecting client may
// pass "offset", the last id it has seen, to receive only what it missed.
package chat
