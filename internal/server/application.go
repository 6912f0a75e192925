// Copyright 2025 Joseph Cumines
//
// Application tool handlers

package server

import (
	"context"
	"errors"

	"github.com/joeycumines/uiautomation-mcp/internal/provider"
)

// handleLaunchApp handles the launch_app tool. Launched processes are owned
// by the session and terminated when it closes.
func (s *MCPServer) handleLaunchApp(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		Path             string `json:"path"`
		Arguments        string `json:"arguments"`
		WorkingDirectory string `json:"workingDirectory"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	done, err := s.session.BeginLaunch()
	if err != nil {
		return failureResultf("Cannot launch %s: %v", params.Path, err), nil
	}
	defer done()

	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	proc, err := prov.Launch(ctx, provider.LaunchOptions{
		Path:             params.Path,
		Arguments:        params.Arguments,
		WorkingDirectory: params.WorkingDirectory,
	})
	if err != nil {
		return providerErrorResult(err, call.Name), nil
	}

	tp, err := s.session.TrackProcess(proc, true)
	if err != nil {
		// The session has already terminated its processes.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
		defer cancel()
		if cerr := prov.CloseProcess(closeCtx, proc.PID, true); cerr != nil && !errors.Is(cerr, provider.ErrNotFound) {
			s.log.Warn("Failed to terminate process launched during shutdown", "pid", proc.PID, "err", cerr)
		}
		return failureResultf("Launched %s (pid %d) after shutdown began; the process was closed", params.Path, proc.PID), nil
	}
	s.log.Info("Launched application", "path", params.Path, "pid", tp.PID)
	return successResult(map[string]any{
		"pid":         tp.PID,
		"processName": tp.Name,
	}), nil
}

// handleAttachToProcess handles the attach_to_process tool. Attached
// processes are never terminated by the session.
func (s *MCPServer) handleAttachToProcess(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		ProcessName string `json:"processName"`
		PID         int    `json:"pid"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}
	if params.PID <= 0 && params.ProcessName == "" {
		return failureResult("Either pid or processName is required"), nil
	}

	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	var (
		proc *provider.Process
		err  error
	)
	if params.PID > 0 {
		proc, err = prov.Attach(ctx, params.PID)
	} else {
		proc, err = prov.AttachByName(ctx, params.ProcessName)
	}
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			if params.PID > 0 {
				return failureResultf("No process found with pid: %d", params.PID), nil
			}
			return failureResultf("No process found with name: %s", params.ProcessName), nil
		}
		return providerErrorResult(err, call.Name), nil
	}

	tp, err := s.session.TrackProcess(proc, false)
	if err != nil {
		return failureResultf("Cannot attach to pid %d: %v", proc.PID, err), nil
	}
	return successResult(map[string]any{
		"pid":         tp.PID,
		"processName": tp.Name,
		"launched":    tp.Launched,
	}), nil
}

// handleCloseApp handles the close_app tool. Only processes tracked by the
// session may be closed. A process that has already exited is reported as
// success with alreadyClosed set.
func (s *MCPServer) handleCloseApp(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		PID   int  `json:"pid"`
		Force bool `json:"force"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	tp, ok := s.session.Process(params.PID)
	if !ok {
		return failureResultf("Process %d is not tracked by this session", params.PID), nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	alreadyClosed := false
	if err := prov.CloseProcess(ctx, params.PID, params.Force); err != nil {
		if !errors.Is(err, provider.ErrNotFound) {
			return providerErrorResult(err, call.Name), nil
		}
		alreadyClosed = true
	}
	s.session.UntrackProcess(params.PID)

	s.log.Info("Closed application", "pid", params.PID, "alreadyClosed", alreadyClosed)
	return successResult(map[string]any{
		"pid":           tp.PID,
		"processName":   tp.Name,
		"alreadyClosed": alreadyClosed,
	}), nil
}
