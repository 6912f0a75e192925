// Copyright 2025 Joseph Cumines
//
// Element tool handlers

package server

import (
	"context"
	"errors"

	"github.com/joeycumines/uiautomation-mcp/internal/poll"
	"github.com/joeycumines/uiautomation-mcp/internal/provider"
)

// findParams are the search criteria shared by find_element and
// find_elements.
type findParams struct {
	AutomationID string `json:"automationId"`
	Name         string `json:"name"`
	ClassName    string `json:"className"`
	ControlType  string `json:"controlType"`
	Parent       string `json:"parent"`
	TimeoutMs    int    `json:"timeoutMs"`
}

func (p findParams) condition() provider.Condition {
	return provider.Condition{
		AutomationID: p.AutomationID,
		Name:         p.Name,
		ClassName:    p.ClassName,
		ControlType:  p.ControlType,
	}
}

// findFirst polls the provider until an element matches. Provider errors
// during an attempt count as not yet found.
func (s *MCPServer) findFirst(ctx context.Context, prov provider.Provider, root *provider.Element, cond provider.Condition, timeoutMs int) (*provider.Element, error) {
	timeout := timeoutOr(timeoutMs, s.cfg.FindTimeout)
	return poll.Until(ctx, s.poller, timeout, func(ctx context.Context) (*provider.Element, bool) {
		el, err := prov.FindFirst(ctx, root, cond)
		if err != nil {
			s.log.Debug("Find attempt failed", "condition", cond, "err", err)
			return nil, false
		}
		return el, el != nil
	})
}

// handleFindElement handles the find_element tool
func (s *MCPServer) handleFindElement(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params findParams
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}
	cond := params.condition()
	if cond.IsZero() {
		return failureResult("At least one of automationId, name, className or controlType is required"), nil
	}

	root, fail := s.resolveParent(params.Parent)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	el, err := s.findFirst(ctx, prov, root, cond, params.TimeoutMs)
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return failureResultf("Element not found: %s", cond), nil
		}
		return providerErrorResult(err, call.Name), nil
	}

	id := s.session.PutElement(el)
	return successResult(elementFields(id, el)), nil
}

// handleFindElements handles the find_elements tool
func (s *MCPServer) handleFindElements(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params findParams
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}
	cond := params.condition()
	if cond.IsZero() {
		return failureResult("At least one of automationId, name, className or controlType is required"), nil
	}

	root, fail := s.resolveParent(params.Parent)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	timeout := timeoutOr(params.TimeoutMs, s.cfg.FindTimeout)
	found, err := poll.Until(ctx, s.poller, timeout, func(ctx context.Context) ([]*provider.Element, bool) {
		els, err := prov.FindAll(ctx, root, cond)
		if err != nil {
			s.log.Debug("Find attempt failed", "condition", cond, "err", err)
			return nil, false
		}
		return els, len(els) > 0
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return providerErrorResult(err, call.Name), nil
	}

	elements := make([]map[string]any, 0, len(found))
	for _, el := range found {
		elements = append(elements, elementFields(s.session.PutElement(el), el))
	}
	return successResult(map[string]any{
		"count":    len(elements),
		"elements": elements,
	}), nil
}

// handleClickElement handles the click_element tool
func (s *MCPServer) handleClickElement(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		ElementID   string `json:"elementId"`
		DoubleClick bool   `json:"doubleClick"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	el, fail := s.resolveElement(params.ElementID)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	if err := prov.Click(ctx, el, params.DoubleClick); err != nil {
		return s.elementErrorResult(err, call.Name, params.ElementID), nil
	}
	return successResult(map[string]any{
		"elementId":   params.ElementID,
		"doubleClick": params.DoubleClick,
	}), nil
}

// handleTypeText handles the type_text tool
func (s *MCPServer) handleTypeText(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		ElementID  string `json:"elementId"`
		Text       string `json:"text"`
		ClearFirst bool   `json:"clearFirst"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	el, fail := s.resolveElement(params.ElementID)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	if err := prov.TypeText(ctx, el, params.Text, params.ClearFirst); err != nil {
		return s.elementErrorResult(err, call.Name, params.ElementID), nil
	}
	return successResult(map[string]any{
		"elementId": params.ElementID,
		"length":    len([]rune(params.Text)),
	}), nil
}

// handleSetValue handles the set_value tool
func (s *MCPServer) handleSetValue(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		ElementID string `json:"elementId"`
		Value     string `json:"value"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	el, fail := s.resolveElement(params.ElementID)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	if err := prov.SetValue(ctx, el, params.Value); err != nil {
		return s.elementErrorResult(err, call.Name, params.ElementID), nil
	}
	return successResult(map[string]any{"elementId": params.ElementID}), nil
}

// handleGetProperty handles the get_property tool
func (s *MCPServer) handleGetProperty(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		ElementID    string `json:"elementId"`
		PropertyName string `json:"propertyName"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	property, ok := provider.CanonicalProperty(params.PropertyName)
	if !ok {
		return failureResultf("Unknown property: %s", params.PropertyName), nil
	}
	el, fail := s.resolveElement(params.ElementID)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	value, err := prov.Property(ctx, el, property)
	if err != nil {
		return s.elementErrorResult(err, call.Name, params.ElementID), nil
	}
	return successResult(map[string]any{
		"elementId":    params.ElementID,
		"propertyName": property,
		"value":        value,
	}), nil
}

// handleGetMainWindow handles the get_main_window tool
func (s *MCPServer) handleGetMainWindow(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		PID int `json:"pid"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	el, err := prov.MainWindow(ctx, params.PID)
	if err != nil {
		return providerErrorResult(err, call.Name), nil
	}
	fields := elementFields(s.session.PutElement(el), el)
	fields["pid"] = params.PID
	return successResult(fields), nil
}

// handleElementExists handles the element_exists tool. Absence is the
// result false, never a failure.
func (s *MCPServer) handleElementExists(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		AutomationID string `json:"automationId"`
		Parent       string `json:"parent"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	root, fail := s.resolveParent(params.Parent)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	cond := provider.Condition{AutomationID: params.AutomationID}
	_, err := poll.Until(ctx, s.poller, s.cfg.ExistsTimeout, func(ctx context.Context) (struct{}, bool) {
		el, err := prov.FindFirst(ctx, root, cond)
		return struct{}{}, err == nil && el != nil
	})
	return successResult(map[string]any{
		"automationId": params.AutomationID,
		"exists":       err == nil,
	}), nil
}

// handleWaitForElement handles the wait_for_element tool. A timeout is the
// result found:false, never a failure.
func (s *MCPServer) handleWaitForElement(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		AutomationID string `json:"automationId"`
		Parent       string `json:"parent"`
		TimeoutMs    int    `json:"timeoutMs"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	root, fail := s.resolveParent(params.Parent)
	if fail != nil {
		return fail, nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	cond := provider.Condition{AutomationID: params.AutomationID}
	timeout := timeoutOr(params.TimeoutMs, s.cfg.WaitTimeout)
	found := poll.Exists(ctx, s.poller, timeout, func(ctx context.Context) bool {
		el, err := prov.FindFirst(ctx, root, cond)
		return err == nil && el != nil
	})
	return successResult(map[string]any{
		"automationId": params.AutomationID,
		"found":        found,
		"timeoutMs":    timeout.Milliseconds(),
	}), nil
}

// handleDragDrop handles the drag_drop tool
func (s *MCPServer) handleDragDrop(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		SourceID string `json:"sourceId"`
		TargetID string `json:"targetId"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	src, fail := s.resolveElement(params.SourceID)
	if fail != nil {
		return fail, nil
	}
	dst, fail := s.resolveElement(params.TargetID)
	if fail != nil {
		return fail, nil
	}
	if src.Bounds.Empty() || dst.Bounds.Empty() {
		return failureResult("Source or target element has invalid bounding rectangle"), nil
	}
	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	if err := prov.DragDrop(ctx, src, dst); err != nil {
		return s.elementErrorResult(err, call.Name, params.SourceID, params.TargetID), nil
	}
	return successResult(map[string]any{
		"sourceId": params.SourceID,
		"targetId": params.TargetID,
	}), nil
}
