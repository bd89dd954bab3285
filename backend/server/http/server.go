package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adwski/walkie-talkie/backend/longpoll"
	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/adwski/walkie-talkie/backend/service"
	_switch "github.com/adwski/walkie-talkie/backend/switch"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline  = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")

	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
)

type (
	HubService interface {
		Register(name string) (model.Participant, error)
		Unregister(token string) (string, error)
		Authenticate(token string) (string, bool)
		Users() []string
		Send(token, to, content string) (model.Message, error)
		AdminSend(from, to, content string) (model.Message, error)
		Poll(token string) (*longpoll.Wait, []model.Message, error)
		ReleasePoll(w *longpoll.Wait)
		Kick(name string) bool
		KickAll() []string
		Shutdown()
	}

	EventSource interface {
		Subscribe() *_switch.Observer
		Unsubscribe(o *_switch.Observer)
		Close()
	}

	Server struct {
		logger     zerolog.Logger
		svc        HubService
		events     EventSource
		joinToken  string
		adminToken string
		*http.Server
	}

	Config struct {
		Logger     *zerolog.Logger
		HubService HubService
		Events     EventSource
		ListenAddr string
		JoinToken  string
		AdminToken string
	}
)

// credential tiers
type tier int

const (
	tierPublic tier = iota
	tierJoin
	tierAdmin
	tierParticipant
)

func (t tier) String() string {
	switch t {
	case tierJoin:
		return "join"
	case tierAdmin:
		return "admin"
	case tierParticipant:
		return "participant"
	default:
		return "public"
	}
}

// handlerFunc serves an authorized request. caller is the participant name
// for the participant tier and empty otherwise.
type handlerFunc func(w http.ResponseWriter, r *http.Request, caller string) error

type route struct {
	path    string
	method  string
	tier    tier
	handler handlerFunc
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:     cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:        cfg.HubService,
		events:     cfg.Events,
		joinToken:  cfg.JoinToken,
		adminToken: cfg.AdminToken,
	}

	r := httprouter.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		srv.logger.Error().Any("panic", v).Str("path", req.URL.Path).Msg("handler panicked")
		writeError(w, http.StatusInternalServerError, fmt.Sprint(v))
	}
	for _, rt := range srv.routes() {
		r.Handle(rt.method, rt.path, srv.dispatch(rt))
	}

	srv.Server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	srv.RegisterOnShutdown(func() {
		srv.svc.Shutdown()
		srv.events.Close()
	})
	return srv
}

func (srv *Server) routes() []route {
	return []route{
		{path: "/", method: http.MethodGet, tier: tierPublic, handler: srv.operatorPage},
		{path: "/events", method: http.MethodGet, tier: tierPublic, handler: srv.streamEvents},
		{path: "/users", method: http.MethodGet, tier: tierPublic, handler: srv.users},

		{path: "/register", method: http.MethodPost, tier: tierJoin, handler: srv.register},

		{path: "/kick", method: http.MethodPost, tier: tierAdmin, handler: srv.kick},
		{path: "/kick-all", method: http.MethodPost, tier: tierAdmin, handler: srv.kickAll},
		{path: "/admin-send", method: http.MethodPost, tier: tierAdmin, handler: srv.adminSend},

		{path: "/send", method: http.MethodPost, tier: tierParticipant, handler: srv.send},
		{path: "/poll", method: http.MethodGet, tier: tierParticipant, handler: srv.poll},
		{path: "/unregister", method: http.MethodPost, tier: tierParticipant, handler: srv.unregister},
	}
}

func (srv *Server) dispatch(rt route) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		caller, err := srv.authorize(rt.tier, r)
		if err != nil {
			srv.logger.Debug().
				Str("path", rt.path).
				Str("tier", rt.tier.String()).
				Msg("request rejected")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		srv.logger.Trace().
			Str("path", rt.path).
			Str("method", rt.method).
			Str("caller", caller).
			Msg("request")

		if err = rt.handler(w, r, caller); err != nil {
			code := statusCode(err)
			if code == http.StatusInternalServerError {
				srv.logger.Error().Err(err).Str("path", rt.path).Msg("request failed")
			}
			writeError(w, code, err.Error())
		}
	}
}

func (srv *Server) authorize(t tier, r *http.Request) (string, error) {
	token := bearerToken(r)
	switch t {
	case tierJoin:
		if !secretMatches(token, srv.joinToken) {
			return "", fmt.Errorf("%w: join token required", ErrUnauthorized)
		}
	case tierAdmin:
		if !secretMatches(token, srv.adminToken) {
			return "", fmt.Errorf("%w: admin token required", ErrUnauthorized)
		}
	case tierParticipant:
		name, ok := srv.svc.Authenticate(token)
		if !ok {
			return "", ErrUnauthorized
		}
		return name, nil
	}
	return "", nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return token
}

func secretMatches(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, service.ErrNotRegistered):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrTargetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeBytes(w, code, b)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	b, err := json.Marshal(&model.ErrorResponse{Error: msg})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
