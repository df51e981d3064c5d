package sqlgen

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
	newlineRun    = regexp.MustCompile(` *\n[\n ]*`)
	clauseKeyword = regexp.MustCompile(`(?i)\b(SELECT|FROM|WHERE|GROUP BY|HAVING|ORDER BY|LIMIT|OFFSET|INNER JOIN|LEFT JOIN|RIGHT JOIN|ON)\b`)
)

// FormatSQL puts each major clause keyword of sql on its own line. The
// output is for display only and is never executed.
func FormatSQL(sql string) string {
	out := whitespaceRun.ReplaceAllString(sql, " ")
	out = clauseKeyword.ReplaceAllString(out, "\n$1")
	out = newlineRun.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}
