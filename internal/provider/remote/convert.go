// Copyright 2025 Joseph Cumines

package remote

import (
	"fmt"

	"github.com/joeycumines/uiautomation-mcp/internal/provider"
	"google.golang.org/protobuf/types/known/structpb"
)

// conditionFields encodes the non-empty criteria of cond as request fields.
func conditionFields(cond provider.Condition) map[string]any {
	fields := map[string]any{}
	if cond.AutomationID != "" {
		fields["automationId"] = cond.AutomationID
	}
	if cond.Name != "" {
		fields["name"] = cond.Name
	}
	if cond.ClassName != "" {
		fields["className"] = cond.ClassName
	}
	if cond.ControlType != "" {
		fields["controlType"] = cond.ControlType
	}
	return fields
}

// elementRef encodes the reference the backend needs to address el.
func elementRef(el *provider.Element) map[string]any {
	return map[string]any{"ref": el.Ref}
}

// elementField decodes the element stored under key, or nil if absent.
func elementField(s *structpb.Struct, key string) *provider.Element {
	return decodeElement(s.GetFields()[key].GetStructValue())
}

func decodeElement(s *structpb.Struct) *provider.Element {
	if s == nil {
		return nil
	}
	f := s.GetFields()
	ref := f["ref"].GetStringValue()
	if ref == "" {
		return nil
	}
	el := &provider.Element{
		Ref:          ref,
		AutomationID: f["automationId"].GetStringValue(),
		Name:         f["name"].GetStringValue(),
		ClassName:    f["className"].GetStringValue(),
		ControlType:  f["controlType"].GetStringValue(),
	}
	if b := f["bounds"].GetStructValue().GetFields(); b != nil {
		el.Bounds = provider.Rect{
			X:      b["x"].GetNumberValue(),
			Y:      b["y"].GetNumberValue(),
			Width:  b["width"].GetNumberValue(),
			Height: b["height"].GetNumberValue(),
		}
	}
	return el
}

// decodeProcess decodes a launch or attach result. A result without a
// positive pid is an error.
func decodeProcess(s *structpb.Struct) (*provider.Process, error) {
	f := s.GetFields()
	pid := int(f["pid"].GetNumberValue())
	if pid <= 0 {
		return nil, fmt.Errorf("response has no valid pid: %d", pid)
	}
	return &provider.Process{
		PID:  pid,
		Name: f["name"].GetStringValue(),
	}, nil
}
