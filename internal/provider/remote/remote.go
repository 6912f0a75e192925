// Copyright 2025 Joseph Cumines
//
// Package remote implements provider.Provider against an automation backend
// reached over gRPC.
//
// The backend exposes the uiautomation.v1.Automation service. Requests and
// responses are google.protobuf.Struct messages, so no generated stubs are
// needed on this side; acknowledgements are google.protobuf.Empty, captures
// are google.protobuf.BytesValue, and LaunchApplication returns a
// google.longrunning.Operation that is polled through the standard
// Operations service until done.

package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/charmbracelet/log"
	"github.com/joeycumines/uiautomation-mcp/internal/poll"
	"github.com/joeycumines/uiautomation-mcp/internal/provider"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service implemented by the backend.
const ServiceName = "uiautomation.v1.Automation"

// DefaultLaunchTimeout bounds how long Launch waits on its operation.
const DefaultLaunchTimeout = 30 * time.Second

// Config holds the connection and policy settings for a remote provider.
type Config struct {
	Logger        *log.Logger
	Poller        *poll.Poller
	Address       string
	CertFile      string
	LaunchTimeout time.Duration
	TLS           bool
}

// Provider is a provider.Provider backed by a gRPC connection.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Provider struct {
	cc            grpc.ClientConnInterface
	conn          *grpc.ClientConn // non-nil only when owned (see Dial)
	ops           longrunningpb.OperationsClient
	poller        *poll.Poller
	log           *log.Logger
	launchTimeout time.Duration
}

var _ provider.Provider = (*Provider)(nil)

// Dial creates a provider owning a new client connection to cfg.Address.
// The connection is established lazily by gRPC; an unreachable backend
// surfaces as provider.ErrUnavailable on the first call.
func Dial(cfg Config) (*Provider, error) {
	var opts []grpc.DialOption

	if cfg.TLS {
		creds := credentials.NewTLS(nil)
		if cfg.CertFile != "" {
			var err error
			creds, err = credentials.NewClientTLSFromFile(cfg.CertFile, "")
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert: %w", err)
			}
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	p := New(conn, cfg)
	p.conn = conn
	return p, nil
}

// New creates a provider over an existing connection, which the caller
// continues to own.
func New(cc grpc.ClientConnInterface, cfg Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = DefaultLaunchTimeout
	}
	return &Provider{
		cc:            cc,
		ops:           longrunningpb.NewOperationsClient(cc),
		poller:        cfg.Poller,
		log:           logger,
		launchTimeout: launchTimeout,
	}
}

// Close closes the connection if this provider owns it.
func (p *Provider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// invoke calls a unary method of the automation service.
func (p *Provider) invoke(ctx context.Context, method string, req map[string]any, reply proto.Message) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}
	if err := p.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, reply); err != nil {
		return classify(method, err)
	}
	return nil
}

// classify maps a gRPC error onto the provider sentinel errors.
func classify(method string, err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	kind := kindOf(st.Code())
	if kind == nil {
		return fmt.Errorf("%s: %s: %s", method, st.Code(), st.Message())
	}
	return fmt.Errorf("%s: %w: %s", method, kind, st.Message())
}

func kindOf(code codes.Code) error {
	switch code {
	case codes.NotFound:
		return provider.ErrNotFound
	case codes.FailedPrecondition, codes.InvalidArgument, codes.PermissionDenied:
		return provider.ErrRejected
	case codes.Unavailable, codes.DeadlineExceeded:
		return provider.ErrUnavailable
	default:
		return nil
	}
}

// staleIfNotFound reports a missing element as stale: element references
// only exist because the backend handed them out earlier.
func staleIfNotFound(err error) error {
	if errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("%w: %w", provider.ErrStaleElement, err)
	}
	return err
}

func (p *Provider) FindFirst(ctx context.Context, root *provider.Element, cond provider.Condition) (*provider.Element, error) {
	req := conditionFields(cond)
	if root != nil {
		req["root"] = elementRef(root)
	}
	var reply structpb.Struct
	if err := p.invoke(ctx, "FindFirst", req, &reply); err != nil {
		return nil, staleIfNotFound(err)
	}
	return elementField(&reply, "element"), nil
}

func (p *Provider) FindAll(ctx context.Context, root *provider.Element, cond provider.Condition) ([]*provider.Element, error) {
	req := conditionFields(cond)
	if root != nil {
		req["root"] = elementRef(root)
	}
	var reply structpb.Struct
	if err := p.invoke(ctx, "FindAll", req, &reply); err != nil {
		return nil, staleIfNotFound(err)
	}
	values := reply.GetFields()["elements"].GetListValue().GetValues()
	elements := make([]*provider.Element, 0, len(values))
	for _, v := range values {
		if el := decodeElement(v.GetStructValue()); el != nil {
			elements = append(elements, el)
		}
	}
	return elements, nil
}

func (p *Provider) MainWindow(ctx context.Context, pid int) (*provider.Element, error) {
	var reply structpb.Struct
	if err := p.invoke(ctx, "GetMainWindow", map[string]any{"pid": pid}, &reply); err != nil {
		return nil, err
	}
	el := elementField(&reply, "element")
	if el == nil {
		return nil, fmt.Errorf("GetMainWindow: %w: process %d has no main window", provider.ErrNotFound, pid)
	}
	return el, nil
}

func (p *Provider) Click(ctx context.Context, el *provider.Element, double bool) error {
	return staleIfNotFound(p.invoke(ctx, "Click", map[string]any{
		"element": elementRef(el),
		"double":  double,
	}, &emptypb.Empty{}))
}

func (p *Provider) TypeText(ctx context.Context, el *provider.Element, text string, clearFirst bool) error {
	return staleIfNotFound(p.invoke(ctx, "TypeText", map[string]any{
		"element":    elementRef(el),
		"text":       text,
		"clearFirst": clearFirst,
	}, &emptypb.Empty{}))
}

func (p *Provider) SetValue(ctx context.Context, el *provider.Element, value string) error {
	return staleIfNotFound(p.invoke(ctx, "SetValue", map[string]any{
		"element": elementRef(el),
		"value":   value,
	}, &emptypb.Empty{}))
}

func (p *Provider) Property(ctx context.Context, el *provider.Element, name string) (any, error) {
	var reply structpb.Value
	if err := p.invoke(ctx, "GetProperty", map[string]any{
		"element":  elementRef(el),
		"property": name,
	}, &reply); err != nil {
		return nil, staleIfNotFound(err)
	}
	return reply.AsInterface(), nil
}

func (p *Provider) DragDrop(ctx context.Context, src, dst *provider.Element) error {
	return staleIfNotFound(p.invoke(ctx, "DragDrop", map[string]any{
		"source": elementRef(src),
		"target": elementRef(dst),
	}, &emptypb.Empty{}))
}

func (p *Provider) SendKeys(ctx context.Context, keys string) error {
	return p.invoke(ctx, "SendKeys", map[string]any{"keys": keys}, &emptypb.Empty{})
}

func (p *Provider) Capture(ctx context.Context, el *provider.Element) ([]byte, error) {
	req := map[string]any{}
	if el != nil {
		req["element"] = elementRef(el)
	}
	var reply wrapperspb.BytesValue
	if err := p.invoke(ctx, "CaptureScreenshot", req, &reply); err != nil {
		return nil, staleIfNotFound(err)
	}
	return reply.GetValue(), nil
}

// Launch starts a process. The backend answers with a long-running
// operation which completes once the application is ready for input.
func (p *Provider) Launch(ctx context.Context, opts provider.LaunchOptions) (*provider.Process, error) {
	var op longrunningpb.Operation
	if err := p.invoke(ctx, "LaunchApplication", map[string]any{
		"path":             opts.Path,
		"arguments":        opts.Arguments,
		"workingDirectory": opts.WorkingDirectory,
	}, &op); err != nil {
		return nil, err
	}

	done, err := p.waitOperation(ctx, &op)
	if err != nil {
		return nil, err
	}

	if opErr := done.GetError(); opErr != nil {
		kind := kindOf(codes.Code(opErr.GetCode()))
		if kind == nil {
			kind = provider.ErrRejected
		}
		return nil, fmt.Errorf("LaunchApplication: %w: %s", kind, opErr.GetMessage())
	}

	result := done.GetResponse()
	if result == nil {
		return nil, fmt.Errorf("LaunchApplication: operation %s completed without a response", done.GetName())
	}
	var response structpb.Struct
	if err := result.UnmarshalTo(&response); err != nil {
		return nil, fmt.Errorf("LaunchApplication: failed to parse response: %w", err)
	}
	proc, err := decodeProcess(&response)
	if err != nil {
		return nil, fmt.Errorf("LaunchApplication: %w", err)
	}
	return proc, nil
}

// waitOperation polls op until it is done. Failed GetOperation calls are
// retried until the launch timeout.
func (p *Provider) waitOperation(ctx context.Context, op *longrunningpb.Operation) (*longrunningpb.Operation, error) {
	if op.GetDone() {
		return op, nil
	}
	name := op.GetName()
	done, err := poll.Until(ctx, p.poller, p.launchTimeout, func(ctx context.Context) (*longrunningpb.Operation, bool) {
		current, err := p.ops.GetOperation(ctx, &longrunningpb.GetOperationRequest{Name: name})
		if err != nil {
			p.log.Debug("operation poll failed", "operation", name, "err", err)
			return nil, false
		}
		return current, current.GetDone()
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for operation %s: %w", name, err)
	}
	return done, nil
}

func (p *Provider) Attach(ctx context.Context, pid int) (*provider.Process, error) {
	var reply structpb.Struct
	if err := p.invoke(ctx, "AttachProcess", map[string]any{"pid": pid}, &reply); err != nil {
		return nil, err
	}
	proc, err := decodeProcess(&reply)
	if err != nil {
		return nil, fmt.Errorf("AttachProcess: %w", err)
	}
	return proc, nil
}

func (p *Provider) AttachByName(ctx context.Context, name string) (*provider.Process, error) {
	var reply structpb.Struct
	if err := p.invoke(ctx, "AttachProcess", map[string]any{"name": name}, &reply); err != nil {
		return nil, err
	}
	proc, err := decodeProcess(&reply)
	if err != nil {
		return nil, fmt.Errorf("AttachProcess: %w", err)
	}
	return proc, nil
}

func (p *Provider) CloseProcess(ctx context.Context, pid int, force bool) error {
	return p.invoke(ctx, "CloseProcess", map[string]any{
		"pid":   pid,
		"force": force,
	}, &emptypb.Empty{})
}
