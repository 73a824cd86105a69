package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"Attendly/internal/model"
	"Attendly/pkg/logger"
	"Attendly/pkg/snowflake"
	"Attendly/storage/mq"
)

// PublishFunc 发送一条 JSON 消息，默认是 mq.PublishMessage
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

func newMessageID(prefix string) (string, error) {
	id, err := snowflake.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate message ID: %w", err)
	}
	return prefix + "_" + strconv.FormatInt(id, 10), nil
}

// MarkPublisher 签到写入后发布 attendance.mark.recorded
type MarkPublisher struct {
	exchange string
	publish  PublishFunc
}

func NewMarkPublisher(exchange string) *MarkPublisher {
	return &MarkPublisher{exchange: exchange, publish: mq.PublishMessage}
}

func (p *MarkPublisher) PublishMarkRecorded(ctx context.Context, mark *model.AttendanceMark) error {
	messageID, err := newMessageID("mark_recorded")
	if err != nil {
		return err
	}

	msg := model.MarkRecordedMessage{
		MessageID:          messageID,
		MarkID:             mark.PublicID,
		Sequence:           mark.ID,
		EventID:            mark.EventID,
		RegistrationID:     mark.RegistrationID,
		UnitKey:            mark.UnitKey,
		Status:             mark.Status,
		VerificationMethod: mark.VerificationMethod,
		MarkedBy:           mark.MarkedBy,
		MarkedAt:           mark.MarkedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := p.publish(ctx, p.exchange, mq.RoutingMarkRecorded, messageID, msg); err != nil {
		return err
	}

	logger.Logger.Debug("Published mark recorded message",
		zap.String("message_id", messageID),
		zap.Int64("registration_id", mark.RegistrationID),
		zap.String("unit_key", mark.UnitKey),
	)
	return nil
}

// publishCriteriaMet 报名首次达标时通知下游
func publishCriteriaMet(ctx context.Context, publish PublishFunc, exchange string, snap *model.ProgressSnapshot, now time.Time) error {
	messageID, err := newMessageID("criteria_met")
	if err != nil {
		return err
	}

	msg := model.CriteriaMetMessage{
		MessageID:         messageID,
		EventID:           snap.EventID,
		RegistrationID:    snap.RegistrationID,
		AttendedUnits:     snap.AttendedUnits,
		TotalUnits:        snap.TotalUnits,
		Percentage:        snap.Percentage,
		MinimumPercentage: snap.MinimumPercentage,
		OccurredAt:        now.UTC().Format(time.RFC3339),
	}

	if err := publish(ctx, exchange, mq.RoutingCriteriaMet, messageID, msg); err != nil {
		logger.Logger.Error("Failed to publish criteria met message",
			zap.Int64("event_id", snap.EventID),
			zap.Int64("registration_id", snap.RegistrationID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published criteria met message",
		zap.String("message_id", messageID),
		zap.Int64("event_id", snap.EventID),
		zap.Int64("registration_id", snap.RegistrationID),
		zap.Int("percentage", snap.Percentage),
	)
	return nil
}
