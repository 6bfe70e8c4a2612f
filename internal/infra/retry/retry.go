package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	cgretry "github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"
)

// Policy повторяет транспортные ошибки с экспоненциальной задержкой.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	Logger   zerolog.Logger
}

// Default даёт 3 попытки, задержка от 300ms до 2s.
func Default(logger zerolog.Logger) Policy {
	return Policy{Attempts: 3, Delay: 300 * time.Millisecond, MaxDelay: 2 * time.Second, Logger: logger}
}

// Do вызывает fn до успеха, нетранзиентной ошибки или исчерпания попыток.
// Возвращаемая ошибка оборачивает последнюю ошибку fn.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	jitter := p.Delay / 2
	if jitter <= 0 {
		jitter = time.Millisecond
	}
	var last error
	err := cgretry.Do(
		func() error {
			last = fn()
			return last
		},
		cgretry.Attempts(attempts),
		cgretry.Delay(p.Delay),
		cgretry.MaxDelay(p.MaxDelay),
		cgretry.MaxJitter(jitter),
		cgretry.Context(ctx),
		cgretry.OnRetry(func(n uint, err error) {
			p.Logger.Warn().Err(err).Str("op", op).Uint("attempt", n+1).Msg("retry: transient failure, retrying")
		}),
		cgretry.RetryIf(IsTransient),
	)
	if err == nil {
		return nil
	}
	if last != nil {
		return fmt.Errorf("%s: %w", op, last)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient сообщает, что ошибка временная: таймаут, сбой сокета или обрыв
// соединения посреди ответа. Отмена контекста, неверная схема или сертификат
// временными не считаются.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
