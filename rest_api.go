package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/ochinchina/stackpanel/reconcile"
	"github.com/ochinchina/stackpanel/types"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// PanelRestful exposes the panel operations as JSON over HTTP
type PanelRestful struct {
	panel *Panel
}

// NewPanelRestful creates a PanelRestful
func NewPanelRestful(panel *Panel) *PanelRestful {
	return &PanelRestful{panel: panel}
}

// Register adds the routes to router
func (pr *PanelRestful) Register(router *mux.Router) {
	router.HandleFunc("/env", pr.GetEnv).Methods("GET")
	router.HandleFunc("/env", pr.ReplaceEnv).Methods("PUT")
	router.HandleFunc("/domains", pr.ApplyDomains).Methods("POST", "PUT")
	router.HandleFunc("/proxy", pr.GetProxy).Methods("GET")
	router.HandleFunc("/proxy/converge", pr.ConvergeProxy).Methods("POST")
	router.HandleFunc("/accounts", pr.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts", pr.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{name}/password", pr.SetPassword).Methods("PUT", "POST")
	router.HandleFunc("/accounts/{name}/groups/{group}", pr.EnsureInGroup).Methods("POST", "PUT")
	router.HandleFunc("/accounts/{name}", pr.DeleteAccount).Methods("DELETE")
	router.HandleFunc("/status", pr.GetStatus).Methods("GET")
	router.HandleFunc("/audit", pr.GetAudit).Methods("GET")
}

// GetEnv returns the environment file
func (pr *PanelRestful) GetEnv(w http.ResponseWriter, req *http.Request) {
	doc, err := envDocument(pr.panel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ReplaceEnv overwrites the environment file with the request body. With
// ?restart=true the stack is restarted afterwards.
func (pr *PanelRestful) ReplaceEnv(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	b, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil || len(b) > maxBodyBytes {
		writeError(w, faults.ValidationError("not a valid request"))
		return
	}
	restart, _ := strconv.ParseBool(req.URL.Query().Get("restart"))
	writeReport(w, pr.panel.Reconciler.ReplaceEnv(req.Context(), string(b), restart))
}

// ApplyDomains patches the proxy settings given as a JSON object
func (pr *PanelRestful) ApplyDomains(w http.ResponseWriter, req *http.Request) {
	var desired map[string]string
	if !readJSON(w, req, &desired) {
		return
	}
	if len(desired) == 0 {
		writeError(w, faults.ValidationError("no settings given"))
		return
	}
	writeReport(w, pr.panel.Reconciler.ApplyDomains(req.Context(), desired))
}

// GetProxy renders the proxy configuration from the current environment file
func (pr *PanelRestful) GetProxy(w http.ResponseWriter, req *http.Request) {
	content, err := pr.panel.Reconciler.Render()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ProxyDocument{Path: pr.panel.Settings.Stack.Caddyfile, Content: content})
}

// ConvergeProxy rewrites the proxy configuration and restarts the proxy
func (pr *PanelRestful) ConvergeProxy(w http.ResponseWriter, req *http.Request) {
	writeReport(w, pr.panel.Reconciler.Converge(req.Context()))
}

// ListAccounts lists the managed accounts
func (pr *PanelRestful) ListAccounts(w http.ResponseWriter, req *http.Request) {
	accounts, err := pr.panel.Accounts.List(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount creates an account
func (pr *PanelRestful) CreateAccount(w http.ResponseWriter, req *http.Request) {
	var r types.CreateAccountRequest
	if !readJSON(w, req, &r) {
		return
	}
	a, err := pr.panel.Accounts.Create(req.Context(), r.Username, r.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// SetPassword replaces the password of an account
func (pr *PanelRestful) SetPassword(w http.ResponseWriter, req *http.Request) {
	var r types.PasswordRequest
	if !readJSON(w, req, &r) {
		return
	}
	if err := pr.panel.Accounts.SetPassword(req.Context(), mux.Vars(req)["name"], r.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// EnsureInGroup adds an account to a group
func (pr *PanelRestful) EnsureInGroup(w http.ResponseWriter, req *http.Request) {
	params := mux.Vars(req)
	added, err := pr.panel.Accounts.EnsureInGroup(req.Context(), params["name"], params["group"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.GroupReport{Username: params["name"], Group: params["group"], Added: added})
}

// DeleteAccount deletes an account and its home directory
func (pr *PanelRestful) DeleteAccount(w http.ResponseWriter, req *http.Request) {
	if err := pr.panel.Accounts.Delete(req.Context(), mux.Vars(req)["name"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetStatus returns the host and stack status
func (pr *PanelRestful) GetStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, pr.panel.Status.Collect(req.Context()))
}

// GetAudit returns the tail of the audit log, ?bytes=N limits its size
func (pr *PanelRestful) GetAudit(w http.ResponseWriter, req *http.Request) {
	if pr.panel.Audit == nil {
		writeError(w, faults.NewFault(faults.IO, "audit log is not enabled"))
		return
	}
	length := int64(64 * 1024)
	if s := req.URL.Query().Get("bytes"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeError(w, faults.ValidationError("bytes must be a non-negative number"))
			return
		}
		length = n
	}
	tail, err := pr.panel.Audit.Tail(length)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(tail))
}

func readJSON(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	defer req.Body.Close()
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, faults.ValidationError("not a valid request: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{log.ErrorKey: err}).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	info := errorInfo(err)
	writeJSON(w, statusCode(err), map[string]interface{}{"success": false, "error": info})
}

// writeReport answers 200 for complete and partial reconciliations; a partial
// one is marked in the body since the environment file was persisted
func writeReport(w http.ResponseWriter, res reconcile.Result) {
	report := reconcileReport(res)
	code := http.StatusOK
	if res.Err != nil && !res.Partial() {
		code = statusCode(res.Err)
	}
	writeJSON(w, code, report)
}

func statusCode(err error) int {
	kind, ok := faults.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case faults.Validation:
		return http.StatusBadRequest
	case faults.StateConflict:
		return http.StatusConflict
	case faults.Command:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
