package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into v and checks required fields.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	if err = json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", ErrBadRequest)
	}
	if err = validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
				return "'" + fe.Field() + "'"
			})
			return fmt.Errorf("%w: missing %s field", ErrBadRequest, strings.Join(fields, " or "))
		}
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}

func (srv *Server) users(w http.ResponseWriter, _ *http.Request, _ string) error {
	writeJSON(w, http.StatusOK, &model.UsersResponse{Users: srv.svc.Users()})
	return nil
}

func (srv *Server) register(w http.ResponseWriter, r *http.Request, _ string) error {
	var req model.RegisterRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	p, err := srv.svc.Register(req.Name)
	if err != nil {
		return err
	}
	srv.logger.Info().Str("name", p.Name).Msg("registered")
	writeJSON(w, http.StatusOK, &model.RegisterResponse{Token: p.Token, Name: p.Name})
	return nil
}

func (srv *Server) send(w http.ResponseWriter, r *http.Request, caller string) error {
	var req model.SendRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	msg, err := srv.svc.Send(bearerToken(r), req.To, req.Content)
	if err != nil {
		return err
	}
	srv.logger.Info().Str("from", caller).Str("to", req.To).Msg("sent")
	writeJSON(w, http.StatusOK, &model.SendResponse{ID: msg.ID, To: msg.To})
	return nil
}

// poll holds the request until messages arrive, the wait times out or is
// superseded, or the client goes away.
func (srv *Server) poll(w http.ResponseWriter, r *http.Request, caller string) error {
	wait, msgs, err := srv.svc.Poll(bearerToken(r))
	if err != nil {
		return err
	}
	if wait == nil {
		writeJSON(w, http.StatusOK, &model.PollResponse{Messages: msgs})
		return nil
	}

	select {
	case res := <-wait.Done():
		if res.Empty() {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		writeJSON(w, http.StatusOK, &model.PollResponse{Messages: res.Messages})
	case <-r.Context().Done():
		srv.svc.ReleasePoll(wait)
		if res := <-wait.Done(); !res.Empty() {
			srv.logger.Warn().
				Str("name", caller).
				Int("messages", len(res.Messages)).
				Msg("poll client went away, messages dropped")
			return nil
		}
		srv.logger.Debug().Str("name", caller).Msg("poll client went away")
	}
	return nil
}

func (srv *Server) unregister(w http.ResponseWriter, r *http.Request, _ string) error {
	name, err := srv.svc.Unregister(bearerToken(r))
	if err != nil {
		return err
	}
	srv.logger.Info().Str("name", name).Msg("unregistered")
	writeJSON(w, http.StatusOK, &model.OKResponse{OK: true})
	return nil
}

func (srv *Server) kick(w http.ResponseWriter, r *http.Request, _ string) error {
	var req model.KickRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if !srv.svc.Kick(req.Name) {
		return fmt.Errorf("%w: user %q", ErrNotFound, req.Name)
	}
	srv.logger.Info().Str("name", req.Name).Msg("kicked")
	writeJSON(w, http.StatusOK, &model.KickResponse{OK: true, Kicked: req.Name})
	return nil
}

func (srv *Server) kickAll(w http.ResponseWriter, _ *http.Request, _ string) error {
	kicked := srv.svc.KickAll()
	srv.logger.Info().Strs("names", kicked).Msg("kicked all")
	writeJSON(w, http.StatusOK, &model.KickAllResponse{OK: true, Kicked: kicked})
	return nil
}

func (srv *Server) adminSend(w http.ResponseWriter, r *http.Request, _ string) error {
	var req model.AdminSendRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	msg, err := srv.svc.AdminSend(req.From, req.To, req.Content)
	if err != nil {
		return err
	}
	srv.logger.Info().Str("from", msg.From).Str("to", req.To).Msg("admin sent")
	writeJSON(w, http.StatusOK, &model.SendResponse{ID: msg.ID, To: msg.To})
	return nil
}
