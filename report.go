package main

import (
	"errors"
	"fmt"

	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/ochinchina/stackpanel/reconcile"
	"github.com/ochinchina/stackpanel/types"
)

func errorInfo(err error) *types.ErrorInfo {
	if err == nil {
		return nil
	}
	var f *faults.Fault
	if errors.As(err, &f) {
		msg := f.Message
		if f.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, f.Cause)
		}
		return &types.ErrorInfo{Kind: f.Kind.String(), Message: msg, Detail: f.Detail}
	}
	return &types.ErrorInfo{Kind: "FAILED", Message: err.Error()}
}

func reconcileReport(res reconcile.Result) types.ReconcileReport {
	report := types.ReconcileReport{
		Status:        types.StatusOK,
		Persisted:     res.Persisted,
		ProxyWritten:  res.ProxyWritten,
		ProxyChanged:  res.ProxyChanged,
		RestartTarget: res.RestartTarget,
		Restarted:     res.Restarted,
		Restart:       res.Restart,
		Warnings:      res.Warnings,
		Error:         errorInfo(res.Err),
	}
	switch {
	case res.Partial():
		report.Status = types.StatusPartial
	case res.Err != nil:
		report.Status = types.StatusFailed
	}
	return report
}

func envDocument(p *Panel) (types.EnvDocument, error) {
	raw, err := p.Store.Raw()
	if err != nil {
		return types.EnvDocument{}, err
	}
	return types.EnvDocument{
		Path:    p.Store.Path(),
		Content: raw,
		Values:  envfile.ParseString(raw).Map(),
	}, nil
}
