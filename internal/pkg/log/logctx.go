// log связывает request-scoped *slog.Logger с контекстом запроса.
// HTTP-мидлвар кладёт логгер (уже обогащённый request_id) через Into,
// а сервисный и storage-слои берут его через From, не принимая логгер
// отдельным аргументом.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into возвращает контекст с привязанным логгером.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста. Если его там нет (фоновые джобы,
// тесты) — отдаёт slog.Default(), чтобы вызывающему не проверять nil.
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}
