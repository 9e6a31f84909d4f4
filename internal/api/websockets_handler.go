package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

const (
	wsIdentityKey  = "identity"
	wsSessionIDKey = "session_id"
	wsChannelKey   = "channel"
)

// WebsocketsHandler upgrades the request and bridges the socket to the
// caller's signaling channel: channel traffic is mirrored to the socket,
// socket messages are decoded and published. A dropped socket counts as
// leaving.
func (app *App) WebsocketsHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sessionID := core.SessionID(chi.URLParam(r, "sessionID"))

	keys := map[string]interface{}{
		wsIdentityKey:  identity,
		wsSessionIDKey: sessionID,
	}

	if err := app.websocket.HandleRequestWithKeys(w, r, keys); err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("can't handle request")
	}
}

func (app *App) wsConnectHandler(session *melody.Session) {
	identity, sessionID, err := wsSessionKeys(session)
	if err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("missing session keys")
		session.Close()
		return
	}

	channel, err := app.Opener.Open(context.Background(), sessionID, identity.ID)
	if err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("can't open signaling channel")
		session.Close()
		return
	}

	for _, method := range rpc.AllMethods {
		channel.Subscribe(method, func(r rpc.Rpc) {
			payload, err := r.ToJSON()
			if err != nil {
				log.Error().Err(err).Str("service", "websockets").Msg("can't encode message")
				return
			}
			if err := session.Write(payload); err != nil {
				log.Error().Err(err).Str("service", "websockets").Msg("can't write to socket")
			}
		})
	}

	session.Set(wsChannelKey, channel)
	<-channel.Start()

	log.Info().
		Str("service", "websockets").
		Str("session_id", string(sessionID)).
		Str("participant_id", string(identity.ID)).
		Msg("bridge connected")
}

func (app *App) wsMessageHandler(session *melody.Session, msg []byte) {
	channel, ok := wsChannel(session)
	if !ok {
		return
	}

	decoded, err := rpc.FromReader(bytes.NewReader(msg))
	if err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("malformed client message")
		return
	}

	if err := channel.Publish(decoded); err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("can't publish client message")
	}
}

func (app *App) wsDisconnectHandler(session *melody.Session) {
	channel, ok := wsChannel(session)
	if !ok {
		return
	}

	identity, sessionID, err := wsSessionKeys(session)
	if err == nil {
		// the socket dying is the viewer leaving, say so on its behalf
		if err := channel.Publish(rpc.NewViewerLeftRpc(sessionID, identity.ID)); err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't publish viewer_left")
		}
	}

	if err := channel.Close(); err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("can't close channel")
	}
}

func wsSessionKeys(session *melody.Session) (core.Identity, core.SessionID, error) {
	rawIdentity, ok := session.Get(wsIdentityKey)
	if !ok {
		return core.Identity{}, "", ErrNoIdentity
	}
	identity, ok := rawIdentity.(core.Identity)
	if !ok {
		return core.Identity{}, "", ErrNoIdentity
	}

	rawSessionID, ok := session.Get(wsSessionIDKey)
	if !ok {
		return core.Identity{}, "", ErrNoIdentity
	}
	sessionID, ok := rawSessionID.(core.SessionID)
	if !ok {
		return core.Identity{}, "", ErrNoIdentity
	}

	return identity, sessionID, nil
}

func wsChannel(session *melody.Session) (eventbus.SignalingChannel, bool) {
	raw, ok := session.Get(wsChannelKey)
	if !ok {
		return nil, false
	}
	channel, ok := raw.(eventbus.SignalingChannel)
	return channel, ok
}
