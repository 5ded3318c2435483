package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const ServiceName = "receiptsplit.v1.SessionService"

// Procedure paths, as Connect clients address them.
const (
	ResolveReceiptProcedure     = "/" + ServiceName + "/ResolveReceipt"
	StartManualSessionProcedure = "/" + ServiceName + "/StartManualSession"
	GetSessionProcedure         = "/" + ServiceName + "/GetSession"
	GenerateProcedure           = "/" + ServiceName + "/Generate"
	RenameParticipantProcedure  = "/" + ServiceName + "/RenameParticipant"
	SetAmountProcedure          = "/" + ServiceName + "/SetAmount"
	ToggleItemProcedure         = "/" + ServiceName + "/ToggleItem"
	ToggleStatusProcedure       = "/" + ServiceName + "/ToggleStatus"
	SwitchModeProcedure         = "/" + ServiceName + "/SwitchMode"
	ResetSessionProcedure       = "/" + ServiceName + "/ResetSession"
	DiscardSessionProcedure     = "/" + ServiceName + "/DiscardSession"
	RenderCodeProcedure         = "/" + ServiceName + "/RenderCode"
)

// NewHandler builds an HTTP handler serving every SessionService procedure.
// It returns the path prefix to mount the handler on.
func NewHandler(svc *SessionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ResolveReceiptProcedure, connect.NewUnaryHandler(ResolveReceiptProcedure, svc.ResolveReceipt, opts...))
	mux.Handle(StartManualSessionProcedure, connect.NewUnaryHandler(StartManualSessionProcedure, svc.StartManualSession, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(GenerateProcedure, connect.NewUnaryHandler(GenerateProcedure, svc.Generate, opts...))
	mux.Handle(RenameParticipantProcedure, connect.NewUnaryHandler(RenameParticipantProcedure, svc.RenameParticipant, opts...))
	mux.Handle(SetAmountProcedure, connect.NewUnaryHandler(SetAmountProcedure, svc.SetAmount, opts...))
	mux.Handle(ToggleItemProcedure, connect.NewUnaryHandler(ToggleItemProcedure, svc.ToggleItem, opts...))
	mux.Handle(ToggleStatusProcedure, connect.NewUnaryHandler(ToggleStatusProcedure, svc.ToggleStatus, opts...))
	mux.Handle(SwitchModeProcedure, connect.NewUnaryHandler(SwitchModeProcedure, svc.SwitchMode, opts...))
	mux.Handle(ResetSessionProcedure, connect.NewUnaryHandler(ResetSessionProcedure, svc.ResetSession, opts...))
	mux.Handle(DiscardSessionProcedure, connect.NewUnaryHandler(DiscardSessionProcedure, svc.DiscardSession, opts...))
	mux.Handle(RenderCodeProcedure, connect.NewUnaryHandler(RenderCodeProcedure, svc.RenderCode, opts...))

	return "/" + ServiceName + "/", mux
}

// Client is a SessionService client.
type Client struct {
	resolveReceipt     *connect.Client[ResolveReceiptRequest, ResolveReceiptResponse]
	startManualSession *connect.Client[StartManualSessionRequest, SessionResponse]
	getSession         *connect.Client[GetSessionRequest, SessionResponse]
	generate           *connect.Client[GenerateRequest, SessionResponse]
	renameParticipant  *connect.Client[RenameParticipantRequest, SessionResponse]
	setAmount          *connect.Client[SetAmountRequest, SessionResponse]
	toggleItem         *connect.Client[ToggleItemRequest, SessionResponse]
	toggleStatus       *connect.Client[ToggleStatusRequest, SessionResponse]
	switchMode         *connect.Client[SwitchModeRequest, SessionResponse]
	resetSession       *connect.Client[ResetSessionRequest, SessionResponse]
	discardSession     *connect.Client[DiscardSessionRequest, DiscardSessionResponse]
	renderCode         *connect.Client[RenderCodeRequest, RenderCodeResponse]
}

// NewClient creates a client for the service at baseURL (e.g. http://localhost:8080).
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		resolveReceipt:     connect.NewClient[ResolveReceiptRequest, ResolveReceiptResponse](httpClient, baseURL+ResolveReceiptProcedure, opts...),
		startManualSession: connect.NewClient[StartManualSessionRequest, SessionResponse](httpClient, baseURL+StartManualSessionProcedure, opts...),
		getSession:         connect.NewClient[GetSessionRequest, SessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
		generate:           connect.NewClient[GenerateRequest, SessionResponse](httpClient, baseURL+GenerateProcedure, opts...),
		renameParticipant:  connect.NewClient[RenameParticipantRequest, SessionResponse](httpClient, baseURL+RenameParticipantProcedure, opts...),
		setAmount:          connect.NewClient[SetAmountRequest, SessionResponse](httpClient, baseURL+SetAmountProcedure, opts...),
		toggleItem:         connect.NewClient[ToggleItemRequest, SessionResponse](httpClient, baseURL+ToggleItemProcedure, opts...),
		toggleStatus:       connect.NewClient[ToggleStatusRequest, SessionResponse](httpClient, baseURL+ToggleStatusProcedure, opts...),
		switchMode:         connect.NewClient[SwitchModeRequest, SessionResponse](httpClient, baseURL+SwitchModeProcedure, opts...),
		resetSession:       connect.NewClient[ResetSessionRequest, SessionResponse](httpClient, baseURL+ResetSessionProcedure, opts...),
		discardSession:     connect.NewClient[DiscardSessionRequest, DiscardSessionResponse](httpClient, baseURL+DiscardSessionProcedure, opts...),
		renderCode:         connect.NewClient[RenderCodeRequest, RenderCodeResponse](httpClient, baseURL+RenderCodeProcedure, opts...),
	}
}

func (c *Client) ResolveReceipt(ctx context.Context, req *connect.Request[ResolveReceiptRequest]) (*connect.Response[ResolveReceiptResponse], error) {
	return c.resolveReceipt.CallUnary(ctx, req)
}

func (c *Client) StartManualSession(ctx context.Context, req *connect.Request[StartManualSessionRequest]) (*connect.Response[SessionResponse], error) {
	return c.startManualSession.CallUnary(ctx, req)
}

func (c *Client) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[SessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *Client) Generate(ctx context.Context, req *connect.Request[GenerateRequest]) (*connect.Response[SessionResponse], error) {
	return c.generate.CallUnary(ctx, req)
}

func (c *Client) RenameParticipant(ctx context.Context, req *connect.Request[RenameParticipantRequest]) (*connect.Response[SessionResponse], error) {
	return c.renameParticipant.CallUnary(ctx, req)
}

func (c *Client) SetAmount(ctx context.Context, req *connect.Request[SetAmountRequest]) (*connect.Response[SessionResponse], error) {
	return c.setAmount.CallUnary(ctx, req)
}

func (c *Client) ToggleItem(ctx context.Context, req *connect.Request[ToggleItemRequest]) (*connect.Response[SessionResponse], error) {
	return c.toggleItem.CallUnary(ctx, req)
}

func (c *Client) ToggleStatus(ctx context.Context, req *connect.Request[ToggleStatusRequest]) (*connect.Response[SessionResponse], error) {
	return c.toggleStatus.CallUnary(ctx, req)
}

func (c *Client) SwitchMode(ctx context.Context, req *connect.Request[SwitchModeRequest]) (*connect.Response[SessionResponse], error) {
	return c.switchMode.CallUnary(ctx, req)
}

func (c *Client) ResetSession(ctx context.Context, req *connect.Request[ResetSessionRequest]) (*connect.Response[SessionResponse], error) {
	return c.resetSession.CallUnary(ctx, req)
}

func (c *Client) DiscardSession(ctx context.Context, req *connect.Request[DiscardSessionRequest]) (*connect.Response[DiscardSessionResponse], error) {
	return c.discardSession.CallUnary(ctx, req)
}

func (c *Client) RenderCode(ctx context.Context, req *connect.Request[RenderCodeRequest]) (*connect.Response[RenderCodeResponse], error) {
	return c.renderCode.CallUnary(ctx, req)
}
