package http

import (
	"errors"
	"net/http"
)

var (
	keepAliveFrame = []byte("\n")
	framePrefix    = []byte("data: ")
	frameSuffix    = []byte("\n\n")
)

// streamEvents pushes live events to an observer as server-sent events.
func (srv *Server) streamEvents(w http.ResponseWriter, r *http.Request, _ string) error {
	rc := http.NewResponseController(w)

	obs := srv.events.Subscribe()
	defer srv.events.Unsubscribe(obs)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(keepAliveFrame); err != nil {
		return nil
	}
	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			srv.logger.Error().Err(err).Msg("event stream cannot be flushed")
		}
		return nil
	}

	for {
		select {
		case <-r.Context().Done():
			return nil
		case frame, ok := <-obs.Frames():
			if !ok {
				return nil
			}
			if err := writeFrame(w, frame); err != nil {
				srv.logger.Debug().Err(err).Uint64("observer", obs.ID).Msg("event stream write failed")
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, frame []byte) error {
	for _, b := range [][]byte{framePrefix, frame, frameSuffix} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
