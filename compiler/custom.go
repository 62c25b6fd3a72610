package compiler

// compileCustom expands user directives. Names are matched longest first
// against every known name, so @datetime is never read as @date followed by
// "time", and builtin matches are left for their own pass.
func (cp *compilation) compileCustom(text string) string {
	if cp.custom == nil {
		return text
	}
	match := func(text string, i int) (string, int) {
		loc := cp.custom.FindStringIndex(text[i:])
		if loc == nil {
			return "", i
		}
		end := i + loc[1]
		if end < len(text) && isWordByte(text[end]) {
			return "", i
		}
		return text[i:end], end
	}
	return scan(text, match, func(name string) handler {
		fn, ok := cp.directives[name]
		if !ok {
			return nil
		}
		return func(d directive) (string, bool, bool) {
			return fn(d.args), d.hasArgs, true
		}
	})
}
