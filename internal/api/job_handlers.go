package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	includeHidden := r.URL.Query().Get("includeHidden") == "true"
	jobs, err := s.catalog.ListJobs(r.Context(), includeHidden)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.catalog.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type createJobRequest struct {
	JobName         string    `json:"jobName"`
	JobDescription  string    `json:"jobDescription"`
	OS              models.OS `json:"os"`
	CrossCompatible bool      `json:"crossCompatible"`
	MasterJob       bool      `json:"masterJob"`
	AgentID         string    `json:"agentId"`
	Available       bool      `json:"available"`
	ShellCommand    bool      `json:"shellCommand"`
	Command         string    `json:"command"`
	Subnets         []string  `json:"subnets"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	claims := claimsFromContext(r.Context())
	job, err := s.catalog.CreateJob(r.Context(), &models.Job{
		JobName:         req.JobName,
		JobDescription:  req.JobDescription,
		OS:              req.OS,
		CrossCompatible: req.CrossCompatible,
		MasterJob:       req.MasterJob,
		AgentID:         req.AgentID,
		Available:       req.Available,
		ShellCommand:    req.ShellCommand,
		Command:         req.Command,
		Subnets:         req.Subnets,
		CreatedBy:       claims.Subject,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var patch models.JobPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.catalog.UpdateJob(r.Context(), mux.Vars(r)["id"], &patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleToggleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.catalog.ToggleJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteJob(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
