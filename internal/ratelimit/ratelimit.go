// ratelimit ограничивает частоту чувствительных операций (логин, регистрация)
// по идентификатору клиента.
//
// Идентификатор выводится из метаданных запроса (forwarded-IP, адрес
// соединения) — это эвристика, а не строгая identity: лимитер смягчает
// перебор, но не является границей безопасности. Поэтому ошибки бэкенда
// лимитера вызывающая сторона трактует как fail-open.
//
// Для многоэкземплярного развёртывания счётчики обязаны жить в общем
// хранилище (Redis); процесс-локальная реализация пригодна только для
// single-instance и тестов.
package ratelimit

import (
	"context"
	"time"
)

// Result — решение лимитера по одной попытке.
type Result struct {
	// Limited — бюджет исчерпан, операцию выполнять нельзя (HTTP 429).
	Limited bool
	// Remaining — оставшиеся попытки в текущем окне.
	Remaining int
	// ResetAt — момент, когда окно закончится и счётчик обнулится.
	ResetAt time.Time
}

// Limiter — контракт хранилища счётчиков попыток.
type Limiter interface {
	// Check учитывает одну попытку для key и возвращает решение.
	Check(ctx context.Context, key string) (Result, error)
	// Reset сбрасывает счётчик key (после успешной аутентификации:
	// легитимного пользователя не штрафуем за прежние неудачи).
	Reset(ctx context.Context, key string) error
}
