/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/bragi_tv/internal/events"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleEventsWS serves the event feed over a websocket. The stream is
// one-directional; inbound frames are read and discarded so pings and
// close frames are processed.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	a.logger.Debug().Str("remote", r.RemoteAddr).Msg("event feed websocket connected")

	feed, stopFeed := a.subscribeAll()
	defer stopFeed()

	ctx := r.Context()

	// Drain the read side.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	initial := busEvent{
		Type:    string(events.EventStatus),
		Payload: statusPayload(a.controller.Status()),
		At:      time.Now(),
	}
	if err := wsjson.Write(ctx, conn, initial); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-readDone:
			return
		case ev := <-feed:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}
