// Package server exposes the HTTP surface of the relay.
package server

import (
	"context"

	"github.com/signchat/chat-relay/chat"
	"github.com/signchat/chat-relay/signchat"
)

// Pinger reports whether the message store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Store     Pinger
	Hub       *chat.Hub
	Signchat  *signchat.Client
	PublicDir string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store     Pinger
	hub       *chat.Hub
	signchat  *signchat.Client
	publicDir string
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		store:     d.Store,
		hub:       d.Hub,
		signchat:  d.Signchat,
		publicDir: d.PublicDir,
	}
}
