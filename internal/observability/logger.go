// Package observability builds the process logger and adapts booking operation logs to it.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvironmentProduction selects the JSON production encoder.
const EnvironmentProduction = "production"

// NewLogger returns a production logger for EnvironmentProduction and a colored development logger otherwise.
func NewLogger(environment string) (*zap.Logger, error) {
	var config zap.Config
	if environment == EnvironmentProduction {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}

// OperationLogger writes booking operation records as structured log lines.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

// LogOperation implements booking.OperationLogger.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Actor.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.Actor.String()))
	}
	if entry.LessonID.String() != "" {
		fields = append(fields, zap.String("lesson_id", entry.LessonID.String()))
	}
	if !entry.Instructor.IsZero() {
		fields = append(fields, zap.String("instructor_id", entry.Instructor.String()))
	}
	if !entry.DateTime.IsZero() {
		fields = append(fields, zap.String("date_time", entry.DateTime.UTC().Format(time.RFC3339Nano)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("booking operation failed", fields...)
		return
	}
	operationLogger.logger.Info("booking operation", fields...)
}
