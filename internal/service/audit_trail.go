package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit rows. Failures are logged, never returned.
type auditTrail struct {
	sink   auditSink
	source string
	logger *zap.Logger
}

func newAuditTrail(sink auditSink, source string, logger *zap.Logger) auditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return auditTrail{sink: sink, source: source, logger: logger}
}

func (a auditTrail) record(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.sink == nil || actor == nil {
		return
	}
	entry := &models.AuditLog{
		CompanyID:  &actor.CompanyID,
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  a.marshal(oldValues),
		NewValues:  a.marshal(newValues),
		IPAddress:  "system",
		UserAgent:  a.source,
	}
	if err := a.sink.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Warn("failed to persist audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (a auditTrail) marshal(value interface{}) []byte {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		a.logger.Warn("failed to encode audit payload", zap.Error(err))
		return nil
	}
	return data
}
