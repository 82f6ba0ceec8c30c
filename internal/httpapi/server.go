package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vanaheimr/usersapi/internal/notification"
	"github.com/vanaheimr/usersapi/pkg/jsonutil"
)

const maxBodyBytes = 1 << 20

// Server exposes the channel registry over HTTP.
type Server struct {
	service *notification.Service
	router  *notification.Router
	hub     *EventHub
	logger  *slog.Logger

	checks map[string]func() bool
}

// NewServer creates the HTTP layer. router and hub may be nil, in which
// case the routing and websocket endpoints answer 503.
func NewServer(service *notification.Service, router *notification.Router, hub *EventHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service: service,
		router:  router,
		hub:     hub,
		logger:  logger,
		checks:  make(map[string]func() bool),
	}
}

// AddHealthCheck registers a dependency probe reported by /health.
func (s *Server) AddHealthCheck(name string, check func() bool) {
	s.checks[name] = check
}

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/owners/{owner}/channels", s.ListChannels).Methods("GET")
	api.HandleFunc("/owners/{owner}/channels", s.AddChannel).Methods("POST")
	api.HandleFunc("/owners/{owner}/channels/{type}", s.RemoveChannels).Methods("DELETE")
	api.HandleFunc("/owners/{owner}/contexts/{context}/channels", s.ListContextChannels).Methods("GET")
	api.HandleFunc("/owners/{owner}/contexts/{context}/channels", s.AddContextChannel).Methods("POST")
	api.HandleFunc("/owners/{owner}/route", s.Route).Methods("POST")
	api.HandleFunc("/events/ws", s.EventStream).Methods("GET")

	r.HandleFunc("/health", s.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func ownerOf(r *http.Request) notification.OwnerID {
	return notification.OwnerID(mux.Vars(r)["owner"])
}

func contextOf(r *http.Request) notification.ContextID {
	return notification.ContextID(mux.Vars(r)["context"])
}

func messageTypesOf(r *http.Request) []notification.MessageType {
	return notification.NewMessageTypes(r.URL.Query()["messageType"]...)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return body, true
}

// writeChannelError maps parse failures to 400 and anything else to 500.
func (s *Server) writeChannelError(w http.ResponseWriter, err error) {
	if errors.Is(err, notification.ErrMalformedChannel) {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("Channel request failed", "error", err)
	jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) writeChannel(w http.ResponseWriter, status int, ch notification.Channel) {
	data, err := ch.ToJSON(false)
	if err != nil {
		s.writeChannelError(w, err)
		return
	}
	jsonutil.WriteRawJSON(w, status, data)
}

func (s *Server) ListChannels(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Projection(r.Context(), ownerOf(r), messageTypesOf(r)...)
	if err != nil {
		s.writeChannelError(w, err)
		return
	}
	jsonutil.WriteRawJSON(w, http.StatusOK, data)
}

func (s *Server) AddChannel(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ch, err := s.service.Register(r.Context(), ownerOf(r), body, messageTypesOf(r)...)
	if err != nil {
		s.writeChannelError(w, err)
		return
	}
	s.writeChannel(w, http.StatusCreated, ch)
}

func (s *Server) RemoveChannels(w http.ResponseWriter, r *http.Request) {
	typ, ok := notification.ParseChannelType(mux.Vars(r)["type"])
	if !ok {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Unknown channel type")
		return
	}
	removed := s.service.Remove(r.Context(), ownerOf(r), typ, r.URL.Query().Get("key"))
	jsonutil.WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) ListContextChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.service.ChannelsInContext(ownerOf(r), contextOf(r))
	data, err := notification.ToJSON(slices.Values(channels))
	if err != nil {
		s.writeChannelError(w, err)
		return
	}
	jsonutil.WriteRawJSON(w, http.StatusOK, data)
}

func (s *Server) AddContextChannel(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ch, err := s.service.RegisterInContext(r.Context(), ownerOf(r), contextOf(r), body)
	if err != nil {
		s.writeChannelError(w, err)
		return
	}
	s.writeChannel(w, http.StatusCreated, ch)
}

type routeRequest struct {
	MessageType string            `json:"messageType"`
	ContextID   string            `json:"contextId"`
	Data        map[string]string `json:"data"`
}

type routeResponse struct {
	Published int                         `json:"published"`
	Tasks     []notification.DeliveryTask `json:"tasks"`
	Error     string                      `json:"error,omitempty"`
}

func (s *Server) Route(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		jsonutil.WriteErrorJSON(w, http.StatusServiceUnavailable, "Routing is disabled")
		return
	}

	var req routeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tasks, err := s.router.Route(r.Context(), ownerOf(r),
		notification.NewMessageType(req.MessageType),
		notification.ContextID(req.ContextID),
		req.Data,
	)
	resp := routeResponse{Published: len(tasks), Tasks: tasks}
	if resp.Tasks == nil {
		resp.Tasks = []notification.DeliveryTask{}
	}
	status := http.StatusAccepted
	if err != nil {
		resp.Error = err.Error()
		if len(tasks) == 0 {
			status = http.StatusBadGateway
		}
	}
	jsonutil.WriteJSON(w, status, resp)
}

func (s *Server) EventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		jsonutil.WriteErrorJSON(w, http.StatusServiceUnavailable, "Event stream is disabled")
		return
	}
	s.hub.ServeWS(w, r)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if check() {
			deps[name] = "up"
			continue
		}
		deps[name] = "down"
		status, code = "degraded", http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status": status,
		"owners": len(s.service.Registry().Owners()),
	}
	if len(deps) > 0 {
		resp["dependencies"] = deps
	}
	jsonutil.WriteJSON(w, code, resp)
}
