// Copyright 2025 Joseph Cumines

package provider

import (
	"context"
	"sync"
)

// Serialize wraps p so that at most one call is in flight at a time.
// Wrapping an already serialized provider returns it unchanged.
func Serialize(p Provider) Provider {
	if s, ok := p.(*serialized); ok {
		return s
	}
	return &serialized{p: p}
}

type serialized struct {
	p  Provider
	mu sync.Mutex
}

func (s *serialized) FindFirst(ctx context.Context, root *Element, cond Condition) (*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.FindFirst(ctx, root, cond)
}

func (s *serialized) FindAll(ctx context.Context, root *Element, cond Condition) ([]*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.FindAll(ctx, root, cond)
}

func (s *serialized) MainWindow(ctx context.Context, pid int) (*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.MainWindow(ctx, pid)
}

func (s *serialized) Click(ctx context.Context, el *Element, double bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Click(ctx, el, double)
}

func (s *serialized) TypeText(ctx context.Context, el *Element, text string, clearFirst bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.TypeText(ctx, el, text, clearFirst)
}

func (s *serialized) SetValue(ctx context.Context, el *Element, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.SetValue(ctx, el, value)
}

func (s *serialized) Property(ctx context.Context, el *Element, name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Property(ctx, el, name)
}

func (s *serialized) DragDrop(ctx context.Context, src, dst *Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.DragDrop(ctx, src, dst)
}

func (s *serialized) SendKeys(ctx context.Context, keys string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.SendKeys(ctx, keys)
}

func (s *serialized) Capture(ctx context.Context, el *Element) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Capture(ctx, el)
}

func (s *serialized) Launch(ctx context.Context, opts LaunchOptions) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Launch(ctx, opts)
}

func (s *serialized) Attach(ctx context.Context, pid int) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Attach(ctx, pid)
}

func (s *serialized) AttachByName(ctx context.Context, name string) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.AttachByName(ctx, name)
}

func (s *serialized) CloseProcess(ctx context.Context, pid int, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.CloseProcess(ctx, pid, force)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Close()
}
