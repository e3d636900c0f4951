package operator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rovelink/rovelink/internal/api"
	"github.com/rovelink/rovelink/internal/api/ws"
	"github.com/rovelink/rovelink/pkg/session"
)

func (o *Operator) apiSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	api.ResponseJSON(w, o.Info())
}

func (o *Operator) apiStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if err := o.Session.Start(); err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}

	api.ResponseJSON(w, o.Info())
}

func (o *Operator) apiStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	o.Session.Stop()

	api.ResponseJSON(w, o.Info())
}

// apiCommand accepts JSON intent, ex. {"steering":0.5,"throttle":1} or
// {"type":"up","value":2}. A command that can't be sent right now is
// dropped, not queued.
func (o *Operator) apiCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	var intent session.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := o.Session.SendCommand(intent); err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrSchemaMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// wsSession sends current info and then every session event until the
// websocket closes
func (o *Operator) wsSession(tr *ws.Transport, _ *ws.Message) error {
	var subscribed bool
	tr.WithContext(func(ctx map[any]any) {
		if _, subscribed = ctx[o]; !subscribed {
			ctx[o] = true
		}
	})
	if subscribed {
		return errors.New("already subscribed")
	}

	tr.Write(&ws.Message{Type: "session", Value: o.Info()})

	sub := o.Session.Listen(func(msg any) {
		if m := eventMessage(msg); m != nil {
			tr.Write(m)
		}
	})
	tr.OnClose(sub.Release)

	return nil
}

func (o *Operator) wsStart(_ *ws.Transport, _ *ws.Message) error {
	return o.Session.Start()
}

func (o *Operator) wsStop(_ *ws.Transport, _ *ws.Message) error {
	o.Session.Stop()
	return nil
}

func (o *Operator) wsCommand(_ *ws.Transport, msg *ws.Message) error {
	var intent session.Intent
	if err := msg.Unmarshal(&intent); err != nil {
		return err
	}
	return o.Session.SendCommand(intent)
}

func eventMessage(msg any) *ws.Message {
	switch msg := msg.(type) {
	case session.StateEvent:
		return &ws.Message{Type: "session/state", Value: msg.State}
	case session.StatusEvent:
		return &ws.Message{Type: "session/status", Value: msg.Text}
	case session.TelemetryEvent:
		return &ws.Message{Type: "session/telemetry", Value: msg}
	case session.VideoEvent:
		return &ws.Message{Type: "session/video", Value: map[string]string{
			"id": msg.Track.ID(), "kind": msg.Track.Kind(),
		}}
	case session.ControlsEvent:
		return &ws.Message{Type: "session/controls", Value: msg.Enabled}
	case session.ClearedEvent:
		return &ws.Message{Type: "session/cleared"}
	}
	return nil
}
