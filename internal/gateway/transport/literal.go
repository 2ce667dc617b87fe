package transport

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/ispbill/internal/gateway/domain"
)

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

// QuoteLiteral renders s as a single-quoted MySQL string literal.
func QuoteLiteral(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

// RenderSQL inlines the statement arguments as escaped literals. The relay
// only accepts raw SQL text.
func RenderSQL(stmt domain.Statement) (string, error) {
	parts := strings.Split(stmt.Query, "?")
	if len(parts)-1 != len(stmt.Args) {
		return "", fmt.Errorf("statement %s: %d placeholders for %d args", stmt.Stage, len(parts)-1, len(stmt.Args))
	}
	var b strings.Builder
	for i, part := range parts {
		b.WriteString(part)
		if i == len(stmt.Args) {
			break
		}
		value, ok := stmt.Args[i].(string)
		if !ok {
			return "", fmt.Errorf("statement %s: arg %d is %T, want string", stmt.Stage, i, stmt.Args[i])
		}
		b.WriteString(QuoteLiteral(value))
	}
	return b.String(), nil
}
