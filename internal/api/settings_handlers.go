package api

import (
	"net/http"
)

func (s *Server) handleGetSubnets(w http.ResponseWriter, r *http.Request) {
	subnets, err := s.subnets.GetSubnets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if subnets == nil {
		subnets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"subnets": subnets})
}

type setSubnetsRequest struct {
	Subnets []string `json:"subnets"`
}

func (s *Server) handleSetSubnets(w http.ResponseWriter, r *http.Request) {
	var req setSubnetsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.subnets.SetSubnets(r.Context(), req.Subnets); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
