package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey пустое обязательное поле натурального ключа.
	ErrInvalidKey = errors.New("invalid key")
	// ErrBlankPartition пустой компонент партиции.
	ErrBlankPartition = errors.New("blank partition component")
	// ErrInvalidArgument прочие ошибки вызова, например nil на входе.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRunLocked блокировку держит другой запуск.
	ErrRunLocked = errors.New("run already in progress")
)

func blankPartition(field string) error {
	return fmt.Errorf("%w: %s", ErrBlankPartition, field)
}

// UpstreamError бизнес-ошибка удалённой системы. Не повторяется.
type UpstreamError struct {
	Source  string
	Op      string
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: upstream failure code=%s", e.Source, e.Op, e.Code)
	}
	return fmt.Sprintf("%s %s: upstream failure code=%s: %s", e.Source, e.Op, e.Code, e.Message)
}

// IsUpstream сообщает, является ли err бизнес-ошибкой удалённой системы.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
