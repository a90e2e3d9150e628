package logger

import (
	"regexp"
	"strings"

	"github.com/ochinchina/stackpanel/executor"
	"github.com/sirupsen/logrus"
)

var secretKeyRegex = regexp.MustCompile(`(?i)(pass|secret|token|key|hash)`)

// Audit records every privileged command as one JSON line. It implements
// executor.Observer.
type Audit struct {
	out Logger
	log *logrus.Logger
}

// NewAudit creates an Audit writing to out
func NewAudit(out Logger) *Audit {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return &Audit{out: out, log: l}
}

// CommandFinished implements executor.Observer. Standard input is never logged.
func (a *Audit) CommandFinished(cmd executor.Command, res executor.Result) {
	entry := a.log.WithFields(logrus.Fields{
		"command":     cmd.Name,
		"args":        Redact(cmd.Args),
		"exit_code":   res.ExitCode,
		"failed":      res.Failed,
		"timed_out":   res.TimedOut,
		"duration_ms": res.Duration.Milliseconds(),
		"stdin":       cmd.Stdin != "",
	})
	if res.Failed {
		entry.Warn("command failed")
		return
	}
	entry.Info("command finished")
}

// Tail returns the last length bytes of the audit trail
func (a *Audit) Tail(length int64) (string, error) {
	return a.out.ReadTail(length)
}

// Close closes the underlying sink
func (a *Audit) Close() error {
	return a.out.Close()
}

// Redact masks the value of KEY=VALUE arguments whose key looks like a secret
func Redact(args []string) []string {
	redacted := make([]string, len(args))
	for i, arg := range args {
		redacted[i] = arg
		if k, _, ok := strings.Cut(arg, "="); ok && secretKeyRegex.MatchString(k) {
			redacted[i] = k + "=***"
		}
	}
	return redacted
}
