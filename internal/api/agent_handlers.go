package api

import (
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/Daemonophobic/phalerum-api/internal/metrics"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// roleMaster is the role carried by recruiter config tokens.
const roleMaster = "Master"

func hasRole(claims *models.SessionClaims, role string) bool {
	if claims == nil {
		return false
	}
	for _, r := range claims.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.registry.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type addAgentRequest struct {
	AgentName string    `json:"agentName"`
	Master    *bool     `json:"master"`
	OS        models.OS `json:"os"`
	IPAddress string    `json:"ipAddress"`
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var req addAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	claims := claimsFromContext(r.Context())

	// Recruiter path: a master session registering an agent it found.
	if hasRole(claims, roleMaster) {
		if req.OS == "" || req.IPAddress == "" {
			writeError(w, operr.InvalidParameters("os", "ipAddress"))
			return
		}
		created, err := s.registry.AddAgent(r.Context(), false, req.OS, models.AddedByAgent, claims.Subject, "")
		if err != nil {
			writeError(w, err)
			return
		}
		created.Agent.IPAddress = req.IPAddress
		if err := s.registry.UpdateAgent(r.Context(), created.Agent); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"agent":              created.Agent,
			"communicationToken": created.CommunicationToken,
		})
		return
	}

	if req.Master == nil || !req.OS.Valid() {
		writeError(w, operr.MissingParameters("agentName", "master", "os"))
		return
	}

	created, err := s.registry.AddAgent(r.Context(), *req.Master, req.OS, models.AddedByUser, claims.Subject, req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}

	// The plaintext token is disclosed exactly once, here.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":              created.Agent,
		"communicationToken": created.CommunicationToken,
	})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteAgent(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	raw, present := body["communicationToken"]
	if !present {
		metrics.CheckInsTotal.WithLabelValues("rejected").Inc()
		writeError(w, operr.MissingParameters("communicationToken"))
		return
	}
	token, ok := raw.(string)
	if !ok {
		metrics.CheckInsTotal.WithLabelValues("rejected").Inc()
		writeError(w, operr.InvalidParameters("communicationToken"))
		return
	}

	jobs, err := s.checkin.HandleCheckIn(r.Context(), token, remoteIP(r))
	if err != nil {
		metrics.CheckInsTotal.WithLabelValues("failure").Inc()
		writeError(w, err)
		return
	}

	metrics.CheckInsTotal.WithLabelValues("success").Inc()
	metrics.JobsServedTotal.Add(float64(len(jobs)))
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Server) handleMasterConfig(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := s.signer.Sign(agent.ID, agent.AgentName, []string{roleMaster})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=config.json")
	writeJSON(w, http.StatusOK, models.MasterConfig{
		APIURL: s.cfg.Server.BaseURL,
		Token:  token,
	})
}

type compileRequest struct {
	ComToken string `json:"comToken"`
}

func (s *Server) handleCompileAgent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !hasRole(claims, roleMaster) {
		writeError(w, operr.ErrForbidden)
		return
	}

	var req compileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if req.ComToken == "" {
		writeError(w, operr.InvalidParameters("id", "comToken"))
		return
	}

	agent, err := s.registry.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.CompilesInFlight.Inc()
	defer metrics.CompilesInFlight.Dec()

	start := time.Now()
	artifact, err := s.pipeline.Compile(r.Context(), agent, req.ComToken)
	if err != nil {
		metrics.CompilesTotal.WithLabelValues("failure").Inc()
		writeError(w, err)
		return
	}
	defer s.pipeline.Cleanup(artifact)

	metrics.CompilesTotal.WithLabelValues("success").Inc()
	metrics.CompileDuration.Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(artifact)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, artifact)
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
