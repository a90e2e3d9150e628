// Package types holds the documents exchanged by the REST API and the CLI.
package types

import (
	"github.com/ochinchina/stackpanel/executor"
)

// Operation outcomes
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ErrorInfo is the wire form of a faults.Fault
type ErrorInfo struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// EnvDocument is the content of the stack environment file
type EnvDocument struct {
	Path    string            `json:"path" yaml:"path"`
	Content string            `json:"content" yaml:"content"`
	Values  map[string]string `json:"values" yaml:"values"`
}

// ReconcileReport reports how far an environment change got
type ReconcileReport struct {
	Status        string           `json:"status" yaml:"status"`
	Persisted     bool             `json:"persisted" yaml:"persisted"`
	ProxyWritten  bool             `json:"proxy_written" yaml:"proxy_written"`
	ProxyChanged  bool             `json:"proxy_changed" yaml:"proxy_changed"`
	RestartTarget string           `json:"restart_target,omitempty" yaml:"restart_target,omitempty"`
	Restarted     bool             `json:"restarted" yaml:"restarted"`
	Restart       *executor.Result `json:"restart,omitempty" yaml:"restart,omitempty"`
	Warnings      []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error         *ErrorInfo       `json:"error,omitempty" yaml:"error,omitempty"`
}

// CreateAccountRequest is the body of POST /api/accounts
type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordRequest is the body of PUT /api/accounts/{name}/password
type PasswordRequest struct {
	Password string `json:"password"`
}

// GroupReport answers POST /api/accounts/{name}/groups/{group}
type GroupReport struct {
	Username string `json:"username" yaml:"username"`
	Group    string `json:"group" yaml:"group"`
	Added    bool   `json:"added" yaml:"added"`
}

// ProxyDocument is the rendered proxy configuration
type ProxyDocument struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}
