package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rule-core/internal/rules"
	"rule-core/pkg/db"
)

// savePlaybook validates and stores a playbook definition. An invalid
// definition is rejected wholesale; nothing is stored.
func (s *Server) savePlaybook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "cannot read body"})
		return
	}

	pb, creq, err := rules.ParsePlaybookJSON(body, s.Registry)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_PLAYBOOK", "error": err.Error()})
		return
	}
	if pb.Name == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_PLAYBOOK", "error": "playbook has no name"})
		return
	}

	rec := db.PlaybookRecord{Name: pb.Name, Definition: string(body)}
	if creq != nil {
		ctxJSON, err := json.Marshal(creq)
		if err == nil {
			rec.ContextRequest = string(ctxJSON)
		}
	}
	if err := s.Store.SavePlaybook(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"name": pb.Name, "rules": len(pb.Rules)})
}

func (s *Server) listPlaybooks(c *gin.Context) {
	records, err := s.Store.ListPlaybooks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"name":       r.Name,
			"deployed":   r.Deployed,
			"updated_at": r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"playbooks": out})
}

func (s *Server) getPlaybook(c *gin.Context) {
	rec, err := s.Store.GetPlaybook(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "playbook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/json")
	c.String(http.StatusOK, rec.Definition)
}

func (s *Server) deletePlaybook(c *gin.Context) {
	name := c.Param("name")
	if dep := s.Engine.Current(); dep != nil && dep.Playbook.Name == name {
		c.JSON(http.StatusConflict, gin.H{"code": "PLAYBOOK_DEPLOYED", "error": "undeploy before deleting"})
		return
	}
	if err := s.Store.DeletePlaybook(c.Request.Context(), name); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "playbook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// deployPlaybook rebuilds the stored definition and swaps it live.
func (s *Server) deployPlaybook(c *gin.Context) {
	name := c.Param("name")
	rec, err := s.Store.GetPlaybook(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "playbook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	pb, creq, err := rules.ParsePlaybookJSON([]byte(rec.Definition), s.Registry)
	if err != nil {
		// A stored definition can go stale against the registry.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_PLAYBOOK", "error": err.Error()})
		return
	}

	gen := s.Engine.Deploy(pb, creq)
	if err := s.Store.MarkDeployed(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	if s.Backend != nil && creq != nil {
		if err := s.Backend.PushContextRequest(c.Request.Context(), name, creq); err != nil {
			// Deployment already succeeded; the backend sync is best-effort.
			c.JSON(http.StatusOK, gin.H{"name": name, "generation": gen, "backend_sync": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "generation": gen})
}

// importPlaybook pulls a parsed definition from the backend and stores it
// locally, validating it on the way in.
func (s *Server) importPlaybook(c *gin.Context) {
	if s.Backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NO_BACKEND", "error": "backend relay not configured"})
		return
	}
	name := c.Param("name")
	body, err := s.Backend.FetchPlaybook(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "BACKEND_ERROR", "error": err.Error()})
		return
	}

	pb, creq, err := rules.ParsePlaybookJSON(body, s.Registry)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_PLAYBOOK", "error": err.Error()})
		return
	}

	rec := db.PlaybookRecord{Name: pb.Name, Definition: string(body)}
	if creq != nil {
		if ctxJSON, err := json.Marshal(creq); err == nil {
			rec.ContextRequest = string(ctxJSON)
		}
	}
	if err := s.Store.SavePlaybook(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": pb.Name, "rules": len(pb.Rules)})
}

func (s *Server) undeployPlaybook(c *gin.Context) {
	s.Engine.Undeploy()
	c.Status(http.StatusNoContent)
}

// getRuleContext returns the live deployment's context requirements.
func (s *Server) getRuleContext(c *gin.Context) {
	dep := s.Engine.Current()
	if dep == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_DEPLOYMENT", "error": "no playbook deployed"})
		return
	}
	if dep.Request != nil {
		c.JSON(http.StatusOK, dep.Request)
		return
	}

	// No explicit descriptor: derive the account fields from the rules.
	fields := map[string]bool{}
	for _, ext := range dep.Playbook.AllExtensions() {
		for _, f := range ext.AccountFields() {
			fields[f] = true
		}
	}
	list := make([]string, 0, len(fields))
	for f := range fields {
		list = append(list, f)
	}
	c.JSON(http.StatusOK, rules.ContextRequest{AccountFields: list})
}

// relayRuleContext forwards a context request descriptor to the backend for
// the live playbook.
func (s *Server) relayRuleContext(c *gin.Context) {
	var creq rules.ContextRequest
	if err := c.BindJSON(&creq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid context request"})
		return
	}
	dep := s.Engine.Current()
	if dep == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_DEPLOYMENT", "error": "no playbook deployed"})
		return
	}
	if s.Backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NO_BACKEND", "error": "backend relay not configured"})
		return
	}
	if err := s.Backend.PushContextRequest(c.Request.Context(), dep.Playbook.Name, &creq); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "BACKEND_ERROR", "error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// getRuleConflicts statically checks the live playbook against the current
// account snapshot.
func (s *Server) getRuleConflicts(c *gin.Context) {
	dep := s.Engine.Current()
	if dep == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_DEPLOYMENT", "error": "no playbook deployed"})
		return
	}
	if s.Accounts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NO_ACCOUNT", "error": "account provider not configured"})
		return
	}

	fields := map[string]bool{}
	for _, f := range rules.GlobalAccountFields {
		fields[f] = true
	}
	for _, ext := range dep.Playbook.AllExtensions() {
		for _, f := range ext.AccountFields() {
			fields[f] = true
		}
	}
	list := make([]string, 0, len(fields))
	for f := range fields {
		list = append(list, f)
	}

	snapshot, err := s.Accounts.GetSnapshot(c.Request.Context(), list)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "ACCOUNT_ERROR", "error": err.Error()})
		return
	}

	checker := rules.NewConflictChecker(snapshot)
	conflicts := gin.H{}
	for _, rb := range dep.Playbook.Rules {
		if found := checker.CheckRuleBlock(rb); len(found) > 0 {
			conflicts[rb.Name] = found
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"account_conflicts": rules.ValidateAccount(snapshot),
		"rule_conflicts":    conflicts,
	})
}

func (s *Server) listPrimitives(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"primitives": s.Registry.Names()})
}

func (s *Server) getResults(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	results, err := s.Store.ListRuleResults(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) getQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quotes": s.Quotes.GetAll()})
}

func (s *Server) getHistoryEvents(c *gin.Context) {
	if s.Tracker == nil {
		c.JSON(http.StatusOK, gin.H{"events": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": s.Tracker.Events()})
}
