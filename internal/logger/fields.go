package logger

import (
	"time"

	"go.uber.org/zap"
)

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func IdentityID(v string) zap.Field { return zap.String("identity_id", v) }

// CPF logs only the last four digits.
func CPF(v string) zap.Field {
	if len(v) > 4 {
		v = "***" + v[len(v)-4:]
	}
	return zap.String("cpf", v)
}

func Err(err error) zap.Field { return zap.Error(err) }
