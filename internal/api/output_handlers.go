package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Daemonophobic/phalerum-api/internal/metrics"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
)

type addOutputRequest struct {
	JobID              string `json:"jobId"`
	CommunicationToken string `json:"communicationToken"`
	Output             string `json:"output"`
	Success            bool   `json:"success"`
}

func (s *Server) handleAddOutput(w http.ResponseWriter, r *http.Request) {
	var req addOutputRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.JobID == "" || req.CommunicationToken == "" || req.Output == "" {
		writeError(w, operr.MissingParameters("jobId", "communicationToken", "output"))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Output)
	if err != nil {
		writeError(w, operr.InvalidParameters("output"))
		return
	}

	_, err = s.ingestor.AddOutput(r.Context(), req.JobID, req.CommunicationToken, string(payload), req.Success)
	if err != nil {
		metrics.OutputsIngestedTotal.WithLabelValues("failure").Inc()
		writeError(w, err)
		return
	}

	metrics.OutputsIngestedTotal.WithLabelValues("success").Inc()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	outputs, err := s.ingestor.ListOutputs(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

func (s *Server) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestor.DeleteOutput(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
