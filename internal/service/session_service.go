package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/receiptsplit/internal/allocation"
	"github.com/mmynk/receiptsplit/internal/ingest"
	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/payref"
	"github.com/mmynk/receiptsplit/internal/resolver"
	"github.com/mmynk/receiptsplit/internal/storage"
	"github.com/mmynk/receiptsplit/internal/visualcode"
)

// AcknowledgedMessage is shown when a link was accepted but no receipt came back.
const AcknowledgedMessage = "Link processed"

// ReceiptResolver turns a scanned link into a receipt.
type ReceiptResolver interface {
	Resolve(ctx context.Context, link string) (*resolver.Result, error)
}

// SessionService implements the Connect SessionService.
type SessionService struct {
	store      storage.Store
	resolver   ReceiptResolver
	refs       payref.Builder
	metrics    *metrics.Registry
	engineOpts []allocation.Option
	locks      *sessionLocks
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithMetrics records service events in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *SessionService) { s.metrics = m }
}

// WithEngineOptions is passed to every allocation engine the service builds.
func WithEngineOptions(opts ...allocation.Option) Option {
	return func(s *SessionService) { s.engineOpts = append(s.engineOpts, opts...) }
}

// NewSessionService creates a SessionService with the given storage backend.
func NewSessionService(store storage.Store, res ReceiptResolver, refs payref.Builder, opts ...Option) *SessionService {
	s := &SessionService{
		store:    store,
		resolver: res,
		refs:     refs,
		locks:    newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveReceipt resolves a scanned link and opens a session for the receipt.
func (s *SessionService) ResolveReceipt(ctx context.Context, req *connect.Request[ResolveReceiptRequest]) (*connect.Response[ResolveReceiptResponse], error) {
	link := strings.TrimSpace(req.Msg.Link)
	if link == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingLink)
	}

	start := time.Now()
	result, err := s.resolver.Resolve(ctx, link)
	if s.metrics != nil {
		s.metrics.ResolveLatencySec.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ResolveFailures.WithLabelValues(string(resolver.CategoryOf(err))).Inc()
		}
		return nil, toConnectError("resolve receipt", err)
	}

	if result.Acknowledged {
		slog.Info("Link acknowledged without receipt", "reason", result.Reason)
		if s.metrics != nil {
			s.metrics.ReceiptsAcknowledged.Inc()
		}
		return connect.NewResponse(&ResolveReceiptResponse{
			Acknowledged: true,
			Message:      AcknowledgedMessage,
			Raw:          string(result.Raw),
		}), nil
	}

	session, err := s.createSession(ctx, link, *result.Receipt)
	if err != nil {
		return nil, toConnectError("resolve receipt", err)
	}
	if s.metrics != nil {
		s.metrics.ReceiptsResolved.Inc()
	}

	if id := req.Msg.ReplaceSessionID; id != "" {
		s.discard(ctx, id)
	}

	return connect.NewResponse(&ResolveReceiptResponse{Session: toSessionMessage(session)}), nil
}

// StartManualSession opens a session for a typed total without items.
func (s *SessionService) StartManualSession(ctx context.Context, req *connect.Request[StartManualSessionRequest]) (*connect.Response[SessionResponse], error) {
	session, err := s.createSession(ctx, "", *ingest.Manual(req.Msg.Total))
	if err != nil {
		return nil, toConnectError("start manual session", err)
	}
	return connect.NewResponse(&SessionResponse{Session: toSessionMessage(session)}), nil
}

func (s *SessionService) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[SessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingSessionID)
	}
	session, err := s.store.GetSession(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError("get session", err)
	}
	return connect.NewResponse(&SessionResponse{Session: toSessionMessage(session)}), nil
}

// Generate replaces the participants with count fresh ones in the given mode.
func (s *SessionService) Generate(ctx context.Context, req *connect.Request[GenerateRequest]) (*connect.Response[SessionResponse], error) {
	mode, err := parseMode(req.Msg.Mode)
	if err != nil {
		return nil, toConnectError("generate", err)
	}
	session, err := s.mutate(ctx, "generate", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.Generate(req.Msg.Count, mode)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AllocationsGenerated.WithLabelValues(string(mode)).Inc()
	}
	slog.Info("Allocation generated",
		"session_id", session.ID,
		"count", req.Msg.Count,
		"mode", mode,
	)
	return connect.NewResponse(&SessionResponse{Session: toSessionMessage(session)}), nil
}

func (s *SessionService) RenameParticipant(ctx context.Context, req *connect.Request[RenameParticipantRequest]) (*connect.Response[SessionResponse], error) {
	return s.respond(s.mutate(ctx, "rename participant", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.RenameParticipant(req.Msg.ParticipantID, req.Msg.Name)
	}))
}

func (s *SessionService) SetAmount(ctx context.Context, req *connect.Request[SetAmountRequest]) (*connect.Response[SessionResponse], error) {
	return s.respond(s.mutate(ctx, "set amount", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.SetAmountText(req.Msg.ParticipantID, req.Msg.Amount)
	}))
}

func (s *SessionService) ToggleItem(ctx context.Context, req *connect.Request[ToggleItemRequest]) (*connect.Response[SessionResponse], error) {
	return s.respond(s.mutate(ctx, "toggle item", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.ToggleItem(req.Msg.ParticipantID, req.Msg.ItemID)
	}))
}

func (s *SessionService) ToggleStatus(ctx context.Context, req *connect.Request[ToggleStatusRequest]) (*connect.Response[SessionResponse], error) {
	return s.respond(s.mutate(ctx, "toggle status", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.ToggleStatus(req.Msg.ParticipantID)
	}))
}

func (s *SessionService) SwitchMode(ctx context.Context, req *connect.Request[SwitchModeRequest]) (*connect.Response[SessionResponse], error) {
	mode, err := parseMode(req.Msg.Mode)
	if err != nil {
		return nil, toConnectError("switch mode", err)
	}
	return s.respond(s.mutate(ctx, "switch mode", req.Msg.SessionID, func(e *allocation.Engine) error {
		return e.SwitchMode(mode)
	}))
}

// ResetSession drops all participants; the receipt stays.
func (s *SessionService) ResetSession(ctx context.Context, req *connect.Request[ResetSessionRequest]) (*connect.Response[SessionResponse], error) {
	return s.respond(s.mutate(ctx, "reset session", req.Msg.SessionID, func(e *allocation.Engine) error {
		e.Reset()
		return nil
	}))
}

// DiscardSession deletes the session and everything in it.
func (s *SessionService) DiscardSession(ctx context.Context, req *connect.Request[DiscardSessionRequest]) (*connect.Response[DiscardSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingSessionID)
	}

	unlock := s.locks.Lock(req.Msg.SessionID)
	defer unlock()

	if err := s.store.DeleteSession(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError("discard session", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	slog.Info("Session discarded", "session_id", req.Msg.SessionID)
	return connect.NewResponse(&DiscardSessionResponse{}), nil
}

// RenderCode renders the visual code for a value, typically a payment reference.
func (s *SessionService) RenderCode(ctx context.Context, req *connect.Request[RenderCodeRequest]) (*connect.Response[RenderCodeResponse], error) {
	grid := visualcode.Render(req.Msg.Value)
	return connect.NewResponse(&RenderCodeResponse{
		Size: visualcode.Size,
		Rows: grid.Rows(),
	}), nil
}

// Session loads a session for read-only use outside the RPC surface.
func (s *SessionService) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Exported records a finished export.
func (s *SessionService) Exported() {
	if s.metrics != nil {
		s.metrics.Exports.Inc()
	}
}

func (s *SessionService) createSession(ctx context.Context, link string, receipt models.Receipt) (*models.Session, error) {
	engine := allocation.New(receipt, s.refs, s.engineOpts...)
	session := &models.Session{
		Link:       link,
		Receipt:    engine.Receipt(),
		Allocation: engine.Snapshot(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	slog.Info("Session created",
		"session_id", session.ID,
		"receipt_id", receipt.ID,
		"items", len(receipt.Items),
		"total", receipt.Total.String(),
	)
	return session, nil
}

// mutate applies op to the session's allocation under the session lock and
// stores the result. A failing op stores nothing.
func (s *SessionService) mutate(ctx context.Context, op, sessionID string, apply func(*allocation.Engine) error) (*models.Session, error) {
	if sessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingSessionID)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, toConnectError(op, err)
	}

	engine := allocation.Restore(session.Receipt, session.Allocation, s.refs, s.engineOpts...)
	if err := apply(engine); err != nil {
		return nil, toConnectError(op, err)
	}

	session.Allocation = engine.Snapshot()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, toConnectError(op, err)
	}

	slog.Debug("Session updated", "session_id", sessionID, "op", op)
	return session, nil
}

func (s *SessionService) respond(session *models.Session, err error) (*connect.Response[SessionResponse], error) {
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&SessionResponse{Session: toSessionMessage(session)}), nil
}

// discard deletes a replaced session; failures only get logged.
func (s *SessionService) discard(ctx context.Context, sessionID string) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	err := s.store.DeleteSession(ctx, sessionID)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
		}
		slog.Info("Replaced session discarded", "session_id", sessionID)
	case errors.Is(err, storage.ErrNotFound):
	default:
		slog.Warn("Failed to discard replaced session", "session_id", sessionID, "error", err)
	}
}

func parseMode(s string) (models.SplitMode, error) {
	if s == "" {
		return models.SplitModeEqual, nil
	}
	mode, ok := models.ParseSplitMode(s)
	if !ok {
		return "", &allocation.ValidationError{Field: "mode", Err: allocation.ErrUnknownMode}
	}
	return mode, nil
}
