// ABOUTME: HTTP handlers for the tag registry at /api/identity-registry
// ABOUTME: GET serves lookup and list, POST serves register and revoke

package gateway

import (
	"net/http"
	"strings"

	"github.com/2389/fundgate/internal/registry"
)

type registryBody struct {
	Tag         string `json:"tag"`
	IdentityKey string `json:"identityKey"`
}

type lookupResponse struct {
	Success bool             `json:"success"`
	Query   string           `json:"query"`
	Results []registry.Match `json:"results"`
}

type listResponse struct {
	Success bool               `json:"success"`
	Tags    []registry.TagInfo `json:"tags"`
}

type tagResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

// handleIdentityRegistry dispatches on method and ?action=.
func (g *Gateway) handleIdentityRegistry(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	switch r.Method {
	case http.MethodGet:
		switch action {
		case "lookup":
			g.handleRegistryLookup(w, r)
		case "list":
			g.handleRegistryList(w, r)
		default:
			g.sendUnknownAction(w, action)
		}
	case http.MethodPost:
		switch action {
		case "register", "revoke":
			g.handleRegistryMutation(w, r, action)
		default:
			g.sendUnknownAction(w, action)
		}
	default:
		g.sendMethodNotAllowed(w, "GET, POST")
	}
}

func (g *Gateway) handleRegistryLookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	results, err := g.registry.Lookup(r.Context(), query)
	if err != nil {
		g.sendActionError(w, "lookup", err)
		return
	}
	g.sendJSON(w, http.StatusOK, lookupResponse{
		Success: true,
		Query:   strings.ToLower(strings.TrimSpace(query)),
		Results: results,
	})
}

func (g *Gateway) handleRegistryList(w http.ResponseWriter, r *http.Request) {
	tags, err := g.registry.ListForIdentity(r.Context(), r.URL.Query().Get("identityKey"))
	if err != nil {
		g.sendActionError(w, "list", err)
		return
	}
	g.sendJSON(w, http.StatusOK, listResponse{Success: true, Tags: tags})
}

func (g *Gateway) handleRegistryMutation(w http.ResponseWriter, r *http.Request, action string) {
	var body registryBody
	if err := decodeBody(w, r, maxRegistryBody, &body); err != nil {
		g.sendActionError(w, action, err)
		return
	}

	if action == "register" {
		res, err := g.registry.Register(r.Context(), body.Tag, body.IdentityKey)
		if err != nil {
			g.sendActionError(w, action, err)
			return
		}
		msg := "Tag registered"
		if res.AlreadyRegistered {
			msg = "Tag already registered"
		}
		g.sendJSON(w, http.StatusOK, tagResponse{Success: true, Message: msg, Tag: res.Tag})
		return
	}

	tag, err := g.registry.Revoke(r.Context(), body.Tag, body.IdentityKey)
	if err != nil {
		g.sendActionError(w, action, err)
		return
	}
	g.sendJSON(w, http.StatusOK, tagResponse{Success: true, Message: "Tag revoked", Tag: tag})
}
