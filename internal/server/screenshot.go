// Copyright 2025 Joseph Cumines
//
// Screenshot tool handler

package server

import (
	"context"

	"github.com/joeycumines/uiautomation-mcp/internal/provider"
	"github.com/joeycumines/uiautomation-mcp/internal/screenshot"
)

// handleTakeScreenshot handles the take_screenshot tool
func (s *MCPServer) handleTakeScreenshot(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		OutputPath string `json:"outputPath"`
		ElementID  string `json:"elementId"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	var el *provider.Element
	if params.ElementID != "" {
		var fail *ToolResult
		if el, fail = s.resolveElement(params.ElementID); fail != nil {
			return fail, nil
		}
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	data, err := prov.Capture(ctx, el)
	if err != nil {
		if params.ElementID != "" {
			return s.elementErrorResult(err, call.Name, params.ElementID), nil
		}
		return providerErrorResult(err, call.Name), nil
	}

	info, err := screenshot.Save(params.OutputPath, data, s.cfg.ScreenshotMaxDimension)
	if err != nil {
		return failureResultf("Failed to save screenshot: %v", err), nil
	}
	return successResult(map[string]any{
		"path":   info.Path,
		"format": info.Format,
		"width":  info.Width,
		"height": info.Height,
		"scaled": info.Scaled,
	}), nil
}
