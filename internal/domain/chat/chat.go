// Package chat runs one conversational turn against a session: it records the
// user's text, streams the reply, renders it and records the result.
package chat

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/notify"
	"github.com/GriffinCanCode/omnik/internal/output/render"
	"github.com/GriffinCanCode/omnik/internal/shared/id"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

// Sessions is the part of the session registry a turn needs.
type Sessions interface {
	SendMessage(ctx context.Context, sessionID, text string) (iter.Seq[string], error)
	SelectOption(ctx context.Context, sessionID string, number int) (iter.Seq[string], error)
}

// History persists transcript and audit records.
type History interface {
	AddMessage(ctx context.Context, msg *types.Message) error
	AddAuditLog(ctx context.Context, entry *types.AuditLog) error
}

// Notifier is told about replies that wait on the owner.
type Notifier interface {
	NotifyAsync(ev notify.Event)
}

// UnitFunc receives each output unit as it arrives.
type UnitFunc func(unit string)

// Reply is a rendered turn.
type Reply struct {
	SessionID string `json:"session_id"`
	render.Response
	Units      int   `json:"units"`
	DurationMS int64 `json:"duration_ms"`
}

// Service runs turns.
type Service struct {
	sessions Sessions
	history  History
	renderer *render.Renderer
	notifier Notifier
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// New creates a chat service. Notifier and metrics may be nil.
func New(sessions Sessions, history History, renderer *render.Renderer, notifier Notifier, metrics *monitoring.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions: sessions,
		history:  history,
		renderer: renderer,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("chat"),
	}
}

// Send writes text to the session and renders everything it printed. The
// user turn is stored before sending; the assistant turn after the stream
// ends.
func (s *Service) Send(ctx context.Context, owner int64, sessionID, text string, onUnit UnitFunc) (*Reply, error) {
	s.record(ctx, sessionID, types.RoleUser, text)

	stream, err := s.sessions.SendMessage(ctx, sessionID, text)
	if err != nil {
		s.Audit(ctx, owner, "send_message", sessionID, map[string]any{"length": len(text)}, err)
		return nil, err
	}
	return s.collect(ctx, owner, sessionID, stream, onUnit), nil
}

// Select answers a numbered prompt.
func (s *Service) Select(ctx context.Context, owner int64, sessionID string, option int, onUnit UnitFunc) (*Reply, error) {
	stream, err := s.sessions.SelectOption(ctx, sessionID, option)
	s.Audit(ctx, owner, "select_option", sessionID, map[string]any{"option": option}, err)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, owner, sessionID, stream, onUnit), nil
}

func (s *Service) collect(ctx context.Context, owner int64, sessionID string, stream iter.Seq[string], onUnit UnitFunc) *Reply {
	start := time.Now()
	var buf strings.Builder
	units := 0
	for unit := range stream {
		units++
		buf.WriteString(unit)
		if onUnit != nil {
			onUnit(unit)
		}
	}

	resp := s.renderer.Render(buf.String())
	reply := &Reply{
		SessionID:  sessionID,
		Response:   resp,
		Units:      units,
		DurationMS: time.Since(start).Milliseconds(),
	}

	s.metrics.RecordClassification(string(resp.Category))
	s.record(ctx, sessionID, types.RoleAssistant, resp.Text)

	s.logger.Info("Response classified",
		zap.String("session_id", sessionID),
		zap.String("category", string(resp.Category)),
		zap.Bool("requires_action", resp.RequiresAction),
		zap.Int("length", len(resp.Text)),
		zap.Int("units", units))

	if resp.RequiresAction && s.notifier != nil {
		ev := notify.Event{
			SessionID: sessionID,
			OwnerID:   owner,
			Category:  string(resp.Category),
			Summary:   resp.Summary,
		}
		if resp.Prompt != nil {
			ev.Prompt = resp.Prompt.Question
			for _, o := range resp.Prompt.Options {
				ev.Options = append(ev.Options, o.Number+". "+o.Text)
			}
		}
		s.notifier.NotifyAsync(ev)
	}
	return reply
}

// Audit stores one audit entry. Failures to store are logged.
func (s *Service) Audit(ctx context.Context, owner int64, action, sessionID string, details map[string]any, err error) {
	if details == nil {
		details = map[string]any{}
	}
	if sessionID != "" {
		details["session_id"] = sessionID
	}
	if err != nil {
		details["error"] = err.Error()
	}

	entry := &types.AuditLog{
		ID:        id.NewAuditID().String(),
		OwnerID:   owner,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Details:   details,
		Success:   err == nil,
	}
	if serr := s.history.AddAuditLog(context.WithoutCancel(ctx), entry); serr != nil {
		s.logger.Warn("Failed to write audit log",
			zap.String("action", action),
			zap.Error(serr))
	}
}

func (s *Service) record(ctx context.Context, sessionID string, role types.Role, content string) {
	msg := &types.Message{
		ID:        id.NewMessageID().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if err := s.history.AddMessage(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("Failed to store message",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err))
	}
}
