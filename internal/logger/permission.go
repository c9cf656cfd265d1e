package logger

import (
	"go.uber.org/zap"
)

// PermissionReporter receives database permission denials. They are routed to
// their own channel so operators can alert on them apart from ordinary errors.
type PermissionReporter interface {
	Report(op, userID string, err error)
}

// ZapPermissionReporter writes permission denials to a dedicated named logger.
type ZapPermissionReporter struct {
	log *zap.Logger
}

// NewPermissionReporter derives the reporter from base.
func NewPermissionReporter(base *zap.Logger) *ZapPermissionReporter {
	return &ZapPermissionReporter{
		log: base.Named("permission").With(zap.String("channel", "permission")),
	}
}

func (r *ZapPermissionReporter) Report(op, userID string, err error) {
	r.log.Error("permission denied",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}

var _ PermissionReporter = (*ZapPermissionReporter)(nil)
