package compiler

import (
	"regexp"
	"strings"

	"github.com/dangdungcntt/go-blade/v2/host"
)

var (
	reComment       = regexp.MustCompile(`(?s)\{\{--.*?--\}\}|<!--#.*?-->`)
	reVerbatim      = regexp.MustCompile(`(?s)\B@verbatim(.*?)@endverbatim`)
	reEscapedEcho   = regexp.MustCompile(`(?s)@(\{\{.*?\}\}|\{!!.*?!!\})`)
	reEscapedAt     = regexp.MustCompile(`@(@\w+)`)
	reRawBlock      = regexp.MustCompile(`(?s)\B@(php|code)\b(.*?)@end(?:php|code)\b`)
	reRawAssignment = regexp.MustCompile(`^\$[A-Za-z_]\w*\s*(?:\+\+|--|\?\?=|\.=|\+=|-=|\*=|/=|=[^=>])`)
)

func stripComments(text string) string {
	return reComment.ReplaceAllString(text, "")
}

// extractVerbatim stashes text that must come out exactly as written.
func (cp *compilation) extractVerbatim(text string) string {
	text = reVerbatim.ReplaceAllStringFunc(text, func(m string) string {
		return cp.stashLiteral(reVerbatim.FindStringSubmatch(m)[1])
	})
	text = reEscapedEcho.ReplaceAllStringFunc(text, func(m string) string {
		return cp.stashLiteral(m[1:])
	})
	return reEscapedAt.ReplaceAllStringFunc(text, func(m string) string {
		return cp.stash(m[1:])
	})
}

// stashLiteral stashes text that must render as written. Text holding a
// host statement opener is wrapped in an echo of a string literal, so the
// program never runs it.
func (cp *compilation) stashLiteral(text string) string {
	if strings.Contains(text, "<?go") {
		return cp.stash(stmt("echo", quote(text)))
	}
	return cp.stash(text)
}

// compileRawBlocks turns @php blocks and inline @php(...) into host
// statements. Assignments become set, echo statements raw echoes and
// everything else do.
func (cp *compilation) compileRawBlocks(text string) string {
	inline := func(d directive) (string, bool, bool) {
		if !d.hasArgs {
			return "", false, false
		}
		return rawStatements(d.args), true, true
	}
	text = cp.rewrite(text, map[string]handler{"php": inline, "code": inline})
	return reRawBlock.ReplaceAllStringFunc(text, func(m string) string {
		return rawStatements(reRawBlock.FindStringSubmatch(m)[2])
	})
}

func rawStatements(body string) string {
	var b strings.Builder
	for _, s := range host.SplitTopLevel(body, ';') {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
		case reRawAssignment.MatchString(s):
			b.WriteString(stmt("set", s))
		case strings.HasPrefix(s, "echo "):
			b.WriteString(stmt("echo", s[len("echo "):]))
		default:
			b.WriteString(stmt("do", s))
		}
	}
	return b.String()
}
