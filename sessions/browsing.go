package sessions

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// KeyBrowsingSession holds the identifier of the current browsing session.
const KeyBrowsingSession = "browsingSession"

// BrowsingSessionID returns the browsing-session identifier recorded in
// durable, creating one when absent or when rotate is set. Session-scoped
// keys are namespaced by it so a new browsing session starts logged out.
func BrowsingSessionID(durable KV, rotate bool) (string, error) {
	if !rotate {
		id, ok, err := durable.Get(KeyBrowsingSession)
		if err != nil {
			return "", errors.Wrap(err, "[BrowsingSessionID] read id")
		}
		if ok && id != "" {
			return id, nil
		}
	}
	id := uuid.New().String()
	if err := durable.Set(KeyBrowsingSession, id); err != nil {
		return "", errors.Wrap(err, "[BrowsingSessionID] write id")
	}
	return id, nil
}

// Scopes splits backend into the durable scope and a session scope bound to
// the current browsing session.
func Scopes(backend Backend, rotate bool) (session KV, durable KV, err error) {
	durable = Namespace(backend, "durable/")
	id, err := BrowsingSessionID(durable, rotate)
	if err != nil {
		return nil, nil, err
	}
	return Namespace(backend, "session/"+id+"/"), durable, nil
}
