// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"servo-commissioning/internal/config"
	"servo-commissioning/internal/model"
)

// LoggerManager manages application logging
type LoggerManager struct {
	logger *zap.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager.logger = logger
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := ParseLevel(lm.config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		output := lm.config.Output
		if output == "" {
			output = "./logs/servo-commissioning.log"
		}
		output = config.ExpandPath(output)

		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// ParseLevel maps a configured level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// BusLogger wraps zap.Logger with serial bus context
type BusLogger struct {
	*zap.Logger
	port string
}

// NewBusLogger creates a bus-specific logger
func NewBusLogger(baseLogger *zap.Logger, port string, baudRate int) *BusLogger {
	return &BusLogger{
		Logger: baseLogger.With(
			zap.String("port", port),
			zap.Int("baud_rate", baudRate),
			zap.String("component", "bus"),
		),
		port: port,
	}
}

// LogConnection logs port open/close events
func (bl *BusLogger) LogConnection(action string, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		bl.Warn("Serial port event", fields...)
	} else {
		bl.Debug("Serial port event", fields...)
	}
}

// AttemptLogger provides structured logging for one commissioning attempt
type AttemptLogger struct {
	logger    *zap.Logger
	attemptID string
	startTime time.Time
}

// NewAttemptLogger creates an attempt-specific logger
func NewAttemptLogger(baseLogger *zap.Logger, attemptID string, req model.CommissioningRequest) *AttemptLogger {
	logger := baseLogger.With(
		zap.String("attempt_id", attemptID),
		zap.String("robot_part", req.RobotPart()),
		zap.String("device_name", req.DeviceName()),
		zap.String("device_kind", string(req.Kind())),
		zap.String("component", "attempt"),
	)

	return &AttemptLogger{
		logger:    logger,
		attemptID: attemptID,
		startTime: time.Now(),
	}
}

// Logger exposes the attempt-scoped zap logger
func (al *AttemptLogger) Logger() *zap.Logger {
	return al.logger
}

// Start logs attempt start
func (al *AttemptLogger) Start(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Time("start_time", al.startTime),
	}, fields...)

	al.logger.Info("Attempt started", allFields...)
}

// Outcome logs the terminal outcome of the attempt
func (al *AttemptLogger) Outcome(outcome model.Outcome, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(al.startTime)),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("detail", outcome.Detail),
	}, fields...)

	if outcome.Succeeded() {
		al.logger.Info("Attempt completed successfully", allFields...)
		return
	}
	if outcome.Err != nil {
		allFields = append(allFields, zap.Error(outcome.Err))
	}
	al.logger.Warn("Attempt failed", allFields...)
}

// Progress logs ticker progress at debug level
func (al *AttemptLogger) Progress(progress int) {
	al.logger.Debug("Attempt progress",
		zap.Int("progress", progress),
		zap.Duration("elapsed", time.Since(al.startTime)),
	)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// AuditLogger records every change written to hardware
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(baseLogger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: baseLogger.With(zap.String("component", "audit")),
	}
}

// LogDeviceConfiguration logs a completed servo configuration
func (al *AuditLogger) LogDeviceConfiguration(attemptID string, previousID int, device model.Device) {
	al.logger.Info("Device configuration written",
		zap.String("attempt_id", attemptID),
		zap.Int("previous_id", previousID),
		zap.Int("identifier", device.Identifier),
		zap.Int("model_number", device.ModelNumber),
		zap.Int("baud_rate", device.BaudRate),
		zap.Int("angle_min", device.AngleLimits.Min),
		zap.Int("angle_max", device.AngleLimits.Max),
		zap.Int("temperature_limit", device.TemperatureLimit),
		zap.Int("return_delay", device.ReturnDelay),
		zap.String("action", "configure_device"),
	)
}

// LogFirmwareFlash logs a firmware image written to a module
func (al *AuditLogger) LogFirmwareFlash(attemptID, module, image string, success bool) {
	al.logger.Info("Module firmware flash",
		zap.String("attempt_id", attemptID),
		zap.String("module", module),
		zap.String("image", image),
		zap.Bool("success", success),
		zap.String("action", "flash_module"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
