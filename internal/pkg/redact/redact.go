// redact — хелперы для безопасного логирования идентификаторов:
// e-mail маскируется, токены и пароли в логи не попадают никогда.
package redact

import "strings"

// Email маскирует локальную часть адреса, сохраняя домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len([]rune(local)) > 2 {
		r := []rune(local)
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
