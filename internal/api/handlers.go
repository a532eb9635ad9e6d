package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/twiliowhatsapp"
	"github.com/go-chi/chi/v5"
)

// webhookHandler answers a Twilio inbound WhatsApp message with TwiML.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	in, err := twiliowhatsapp.ParseInbound(r)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil && !s.validator.Valid(r) {
		slog.Warn("Server.webhookHandler: invalid Twilio signature", "from", in.From)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if in.From == "" {
		slog.Warn("Server.webhookHandler: missing sender")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	slog.Info("Server.webhookHandler: inbound message", "from", in.From)

	reply := s.handler.HandleInbound(r.Context(), in.From, in.ProfileName, in.Body)
	doc, err := twiliowhatsapp.MessagingResponse(reply)
	if err != nil {
		slog.Error("Server.webhookHandler: failed to render reply", "error", err, "from", in.From)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeTwiML(w, doc)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(HealthMessage, nil))
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.store.List(r.Context())
	if err != nil {
		slog.Error("Server.listCustomersHandler: failed to list customers", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list customers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(customers))
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone"))
		return
	}
	phone, err := messaging.CanonicalizePhone(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	c, err := s.store.Get(r.Context(), phone)
	if errors.Is(err, models.ErrCustomerNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Customer not found"))
		return
	}
	if err != nil {
		slog.Error("Server.getCustomerHandler: failed to get customer", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get customer"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// sweepHandler runs one campaign sweep synchronously and returns its report.
func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.RunSweep(r.Context(), s.tiers)
	if err != nil {
		slog.Error("Server.sweepHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sweep failed: "+err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Sweep completed", report))
}
