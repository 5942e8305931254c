// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewControlHandler returns the control-plane REST surface over the given
// [*Store].
//
// Routes:
//
//	GET  PUT             /config
//	GET  PUT  POST       /config/listeners
//	GET  PUT             /config/chains
//	GET  PUT  POST  DELETE  /config/chains/:chain
//	GET  PUT             /config/stash
//	GET  PUT             /config/stash/domain_pools
//	GET  PUT  POST  DELETE  /config/stash/domain_pools/:pool
//
// PUT replaces, POST appends to the named collection (creating it if
// absent), DELETE removes. Status codes: 200 on GET, 202 on PUT, 201 when a
// PUT or POST creates a new named resource, 202 when it replaces or
// appends, 304 on DELETE of a missing resource, 404 on GET of a missing
// resource, 400 on an undecodable body.
//
// Every mutation clones the current snapshot, edits the clone, and installs
// it via [Store.Replace], so readers observe either the old or the new
// document, never a partial edit.
//
// The /config/listeners surface exists for backward compatibility: the
// runtime binds only CLI-declared listeners, the stored list merely
// round-trips through the document.
func NewControlHandler(store *Store, logger SLogger) http.Handler {
	c := &controlPlane{logger: logger, store: store}
	router := httprouter.New()

	router.GET("/config", c.getConfig)
	router.PUT("/config", c.setConfig)

	router.GET("/config/listeners", c.getListeners)
	router.PUT("/config/listeners", c.setListeners)
	router.POST("/config/listeners", c.addListener)

	router.GET("/config/chains", c.getChains)
	router.PUT("/config/chains", c.setChains)
	router.GET("/config/chains/:chain", c.getChain)
	router.PUT("/config/chains/:chain", c.setChain)
	router.POST("/config/chains/:chain", c.addChainRule)
	router.DELETE("/config/chains/:chain", c.delChain)

	router.GET("/config/stash", c.getStash)
	router.PUT("/config/stash", c.setStash)
	router.GET("/config/stash/domain_pools", c.getDomainPools)
	router.PUT("/config/stash/domain_pools", c.setDomainPools)
	router.GET("/config/stash/domain_pools/:pool", c.getDomainPool)
	router.PUT("/config/stash/domain_pools/:pool", c.setDomainPool)
	router.POST("/config/stash/domain_pools/:pool", c.addDomain)
	router.DELETE("/config/stash/domain_pools/:pool", c.delDomainPool)

	return router
}

// controlPlane implements the REST handlers.
type controlPlane struct {
	logger SLogger
	store  *Store
}

// writeJSON sends body as a JSON response.
func (c *controlPlane) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// readJSON decodes the request body into out, answering 400 on failure.
func (c *controlPlane) readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		c.logger.Debug("controlBadRequest", slog.String("path", r.URL.Path), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (c *controlPlane) getConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c.writeJSON(w, http.StatusOK, c.store.Current())
}

func (c *controlPlane) setConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cfg := NewConfig()
	if !c.readJSON(w, r, cfg) {
		return
	}
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getListeners(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	listeners := c.store.Current().Listeners
	if listeners == nil {
		listeners = []json.RawMessage{}
	}
	c.writeJSON(w, http.StatusOK, listeners)
}

func (c *controlPlane) setListeners(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var listeners []json.RawMessage
	if !c.readJSON(w, r, &listeners) {
		return
	}
	cfg := c.store.Current().Clone()
	cfg.Listeners = listeners
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) addListener(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var listener json.RawMessage
	if !c.readJSON(w, r, &listener) {
		return
	}
	cfg := c.store.Current().Clone()
	cfg.Listeners = append(cfg.Listeners, listener)
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getChains(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c.writeJSON(w, http.StatusOK, c.store.Current().Chains)
}

func (c *controlPlane) setChains(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var chains map[string][]ChainRule
	if !c.readJSON(w, r, &chains) {
		return
	}
	cfg := c.store.Current().Clone()
	cfg.Chains = chains
	if cfg.Chains == nil {
		cfg.Chains = map[string][]ChainRule{}
	}
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getChain(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	chain, found := c.store.Current().Chains[params.ByName("chain")]
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c.writeJSON(w, http.StatusOK, chain)
}

func (c *controlPlane) setChain(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var chain []ChainRule
	if !c.readJSON(w, r, &chain) {
		return
	}
	name := params.ByName("chain")
	cfg := c.store.Current().Clone()
	_, replaced := cfg.Chains[name]
	cfg.Chains[name] = chain
	c.store.Replace(cfg)
	if replaced {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *controlPlane) addChainRule(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var rule ChainRule
	if !c.readJSON(w, r, &rule) {
		return
	}
	name := params.ByName("chain")
	cfg := c.store.Current().Clone()
	_, appended := cfg.Chains[name]
	cfg.Chains[name] = append(cfg.Chains[name], rule)
	c.store.Replace(cfg)
	if appended {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *controlPlane) delChain(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("chain")
	cfg := c.store.Current().Clone()
	if _, found := cfg.Chains[name]; !found {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	delete(cfg.Chains, name)
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getStash(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c.writeJSON(w, http.StatusOK, c.store.Current().Stash)
}

func (c *controlPlane) setStash(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var stash Stash
	if !c.readJSON(w, r, &stash) {
		return
	}
	cfg := c.store.Current().Clone()
	cfg.Stash = stash
	if cfg.Stash.DomainPools == nil {
		cfg.Stash.DomainPools = map[string]DomainPool{}
	}
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getDomainPools(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c.writeJSON(w, http.StatusOK, c.store.Current().Stash.DomainPools)
}

func (c *controlPlane) setDomainPools(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var pools map[string]DomainPool
	if !c.readJSON(w, r, &pools) {
		return
	}
	cfg := c.store.Current().Clone()
	cfg.Stash.DomainPools = pools
	if cfg.Stash.DomainPools == nil {
		cfg.Stash.DomainPools = map[string]DomainPool{}
	}
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlPlane) getDomainPool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	pool, found := c.store.Current().Stash.DomainPools[params.ByName("pool")]
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c.writeJSON(w, http.StatusOK, pool)
}

func (c *controlPlane) setDomainPool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var pool DomainPool
	if !c.readJSON(w, r, &pool) {
		return
	}
	name := params.ByName("pool")
	cfg := c.store.Current().Clone()
	_, replaced := cfg.Stash.DomainPools[name]
	cfg.Stash.DomainPools[name] = pool
	c.store.Replace(cfg)
	if replaced {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *controlPlane) addDomain(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var domain string
	if !c.readJSON(w, r, &domain) {
		return
	}
	name := params.ByName("pool")
	cfg := c.store.Current().Clone()
	pool, appended := cfg.Stash.DomainPools[name]
	pool.Add(domain)
	cfg.Stash.DomainPools[name] = pool
	c.store.Replace(cfg)
	if appended {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *controlPlane) delDomainPool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("pool")
	cfg := c.store.Current().Clone()
	if _, found := cfg.Stash.DomainPools[name]; !found {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	delete(cfg.Stash.DomainPools, name)
	c.store.Replace(cfg)
	w.WriteHeader(http.StatusAccepted)
}
