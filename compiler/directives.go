package compiler

import (
	"maps"
	"strconv"
	"strings"

	"github.com/dangdungcntt/go-blade/v2/host"
)

// builtinNames holds every name a custom directive may not take.
var builtinNames = collectBuiltins()

func collectBuiltins() map[string]struct{} {
	names := map[string]struct{}{}
	cp := &compilation{}
	for name := range cp.builtinHandlers() {
		names[name] = struct{}{}
	}
	for _, name := range []string{"verbatim", "endverbatim", "php", "endphp", "code", "endcode"} {
		names[name] = struct{}{}
	}
	return names
}

func (cp *compilation) builtinHandlers() map[string]handler {
	all := map[string]handler{}
	for _, table := range []map[string]handler{
		cp.structureHandlers(),
		cp.inheritanceHandlers(),
		cp.formHandlers(),
		cp.componentHandlers(),
		cp.helperHandlers(),
	} {
		maps.Copy(all, table)
	}
	return all
}

func keyword(kw string) func(string) string {
	return func(args string) string { return stmt(kw, args) }
}

func call(kw, fn string) func(string) string {
	return func(args string) string { return stmt(kw, fn+"("+args+")") }
}

func (cp *compilation) compileStructures(text string) string {
	table := cp.structureHandlers()
	return scan(text, wordName, func(name string) handler {
		if h := table[name]; h != nil {
			return h
		}
		return cp.conditionHandler(name)
	})
}

func (cp *compilation) structureHandlers() map[string]handler {
	endif := bare("<?go endif ?>")
	return map[string]handler{
		"if":        withArgs(keyword("if")),
		"elseif":    withArgs(keyword("elseif")),
		"else":      bare("<?go else ?>"),
		"endif":     endif,
		"unless":    withArgs(call("if", "falsy")),
		"endunless": endif,
		"isset":     withArgs(call("if", "isset")),
		"endisset":  endif,
		"empty":     cp.empty,
		"endempty":  endif,

		"switch":    withArgs(keyword("switch")),
		"case":      withArgs(keyword("case")),
		"default":   bare("<?go default ?>"),
		"endswitch": bare("<?go endswitch ?>"),

		"foreach":    withArgs(keyword("foreach")),
		"endforeach": bare("<?go endforeach ?>"),
		"forelse":    withArgs(cp.startForelse),
		"endforelse": cp.endForelse,
		"for":        withArgs(keyword("for")),
		"endfor":     bare("<?go endfor ?>"),
		"while":      withArgs(keyword("while")),
		"endwhile":   bare("<?go endwhile ?>"),
		"break":      loopControl("break"),
		"continue":   loopControl("continue"),

		"auth":           optArgs(call("if", "blade.Auth")),
		"elseauth":       optArgs(call("elseif", "blade.Auth")),
		"endauth":        endif,
		"guest":          optArgs(call("if", "blade.Guest")),
		"elseguest":      optArgs(call("elseif", "blade.Guest")),
		"endguest":       endif,
		"can":            withArgs(call("if", "blade.Can")),
		"elsecan":        withArgs(call("elseif", "blade.Can")),
		"endcan":         endif,
		"cannot":         withArgs(call("if", "blade.Cannot")),
		"elsecannot":     withArgs(call("elseif", "blade.Cannot")),
		"endcannot":      endif,
		"canany":         withArgs(call("if", "blade.CanAny")),
		"elsecanany":     withArgs(call("elseif", "blade.CanAny")),
		"endcanany":      endif,
		"role":           withArgs(call("if", "blade.HasRole")),
		"endrole":        endif,
		"env":            withArgs(call("if", "blade.Env")),
		"endenv":         endif,
		"production":     bare("<?go if blade.Production() ?>"),
		"endproduction":  endif,
		"hasSection":     withArgs(call("if", "blade.HasSection")),
		"sectionMissing": withArgs(call("if", "blade.SectionMissing")),
		"once":           cp.onceHandler,
		"endonce":        endif,
		"error":          withArgs(errorBlock),
		"enderror":       endif,
	}
}

// empty is @empty(x) as a condition, or the empty branch of @forelse.
func (cp *compilation) empty(d directive) (string, bool, bool) {
	if d.hasArgs {
		if strings.TrimSpace(d.args) == "" {
			return "", false, false
		}
		return stmt("if", "empty("+d.args+")"), true, true
	}
	if len(cp.forelse) == 0 {
		return "", false, false
	}
	id := cp.forelse[len(cp.forelse)-1]
	return "<?go endforeach ?>" + stmt("if", emptyVar(id)), false, true
}

func (cp *compilation) startForelse(args string) string {
	cp.empties++
	id := cp.empties
	cp.forelse = append(cp.forelse, id)
	return stmt("set", emptyVar(id)+" = true") + stmt("foreach", args) + stmt("set", emptyVar(id)+" = false")
}

func (cp *compilation) endForelse(directive) (string, bool, bool) {
	if len(cp.forelse) == 0 {
		return "", false, false
	}
	cp.forelse = cp.forelse[:len(cp.forelse)-1]
	return "<?go endif ?>", false, true
}

func emptyVar(id int) string { return "$__empty_" + strconv.Itoa(id) }

// loopControl handles @break, @break(2) and @break($cond).
func loopControl(kw string) handler {
	return func(d directive) (string, bool, bool) {
		args := strings.TrimSpace(d.args)
		if !d.hasArgs || args == "" {
			return stmt(kw, ""), d.hasArgs, true
		}
		if _, err := strconv.Atoi(args); err == nil {
			return stmt(kw, args), true, true
		}
		return stmt("if", args) + stmt(kw, "") + "<?go endif ?>", true, true
	}
}

func (cp *compilation) onceHandler(d directive) (string, bool, bool) {
	cp.once++
	id := cp.id + "-" + strconv.Itoa(cp.once)
	if d.hasArgs && strings.TrimSpace(d.args) != "" {
		return stmt("if", "blade.Once("+d.args+")"), true, true
	}
	return stmt("if", "blade.Once("+quote(id)+")"), false, true
}

func errorBlock(args string) string {
	return stmt("if", "blade.HasError("+args+")") + stmt("set", "$message = blade.ErrorMessage("+args+")")
}

// conditionHandler compiles the directives of conditionals registered with
// Compiler.If.
func (cp *compilation) conditionHandler(name string) handler {
	check := func(cond string, args string) string {
		if strings.TrimSpace(args) == "" {
			return "blade.Check(" + quote(cond) + ")"
		}
		return "blade.Check(" + quote(cond) + ", " + args + ")"
	}
	if _, ok := cp.conditions[name]; ok {
		return optArgs(func(args string) string { return stmt("if", check(name, args)) })
	}
	for cond := range cp.conditions {
		switch name {
		case "else" + cond:
			return optArgs(func(args string) string { return stmt("elseif", check(cond, args)) })
		case "unless" + cond:
			return optArgs(func(args string) string { return stmt("if", "!"+check(cond, args)) })
		case "end" + cond:
			return bare("<?go endif ?>")
		}
	}
	return nil
}

func (cp *compilation) compileInheritance(text string) string {
	return cp.rewrite(text, cp.inheritanceHandlers())
}

func (cp *compilation) inheritanceHandlers() map[string]handler {
	stopSection := bare("<?go do blade.StopSection() ?>")
	return map[string]handler{
		"extends":       withArgs(cp.extends),
		"section":       withArgs(call("do", "blade.StartSection")),
		"endsection":    stopSection,
		"stop":          stopSection,
		"overwrite":     bare("<?go do blade.StopSection(true) ?>"),
		"append":        bare("<?go do blade.AppendSection() ?>"),
		"show":          bare("<?go echo blade.YieldSection() ?>"),
		"yield":         withArgs(call("echo", "blade.YieldContent")),
		"parent":        bare(host.ParentPlaceholder),
		"push":          withArgs(call("do", "blade.StartPush")),
		"endpush":       bare("<?go do blade.StopPush() ?>"),
		"prepend":       withArgs(call("do", "blade.StartPrepend")),
		"endprepend":    bare("<?go do blade.StopPrepend() ?>"),
		"stack":         withArgs(call("echo", "blade.YieldPushContent")),
		"include":       withArgs(call("echo", "blade.Include")),
		"includeIf":     withArgs(call("echo", "blade.IncludeIf")),
		"includeWhen":   withArgs(call("echo", "blade.IncludeWhen")),
		"includeUnless": withArgs(call("echo", "blade.IncludeUnless")),
		"includeFirst":  withArgs(call("echo", "blade.IncludeFirst")),
		"each":          withArgs(call("echo", "blade.Each")),
	}
}

// extends moves the parent declaration to the end of the program. Only the
// first one counts.
func (cp *compilation) extends(args string) string {
	if cp.footer == "" {
		cp.footer = stmt("extends", args)
	}
	return ""
}

func (cp *compilation) compileForms(text string) string {
	return cp.rewrite(text, cp.formHandlers())
}

func (cp *compilation) formHandlers() map[string]handler {
	flag := func(word string) handler {
		return withArgs(func(args string) string {
			return stmt("if", args) + word + "<?go endif ?>"
		})
	}
	return map[string]handler{
		"csrf": bare(`<input type="hidden" name="_token" value="<?go echo e(blade.CsrfToken()) ?>" autocomplete="off">`),
		"method": withArgs(func(args string) string {
			return `<input type="hidden" name="_method" value="` + stmt("echo", "e(upper(str("+args+")))") + `">`
		}),
		"checked":  flag("checked"),
		"selected": flag("selected"),
		"disabled": flag("disabled"),
		"readonly": flag("readonly"),
		"required": flag("required"),
		"class": withArgs(func(args string) string {
			return `class="` + stmt("echo", "e(class_list("+orderedPairs(args)+"))") + `"`
		}),
		"style": withArgs(func(args string) string {
			return `style="` + stmt("echo", "e(style_list("+orderedPairs(args)+"))") + `"`
		}),
	}
}

func (cp *compilation) compileComponentDirectives(text string) string {
	return cp.rewrite(text, cp.componentHandlers())
}

func (cp *compilation) componentHandlers() map[string]handler {
	return map[string]handler{
		"props": withArgs(func(args string) string {
			return stmt("do", "blade.Props("+orderedPairs(args)+")")
		}),
		"aware": withArgs(func(args string) string {
			return stmt("do", "blade.Aware("+orderedPairs(args)+")")
		}),
		"fragment":    withArgs(call("do", "blade.StartFragment")),
		"endfragment": bare("<?go echo blade.StopFragment() ?>"),
		"teleport":    withArgs(call("do", "blade.StartTeleport")),
		"endteleport": bare("<?go do blade.StopTeleport() ?>"),
		"teleports":   bare("<?go echo blade.Teleports() ?>"),
		"cache":       withArgs(call("if", "blade.StartCache")),
		"endcache":    bare("<?go endif ?><?go echo blade.StopCache() ?>"),
		"lazy":        withArgs(call("echo", "blade.Lazy")),
	}
}

func (cp *compilation) compileHelpers(text string) string {
	return cp.rewrite(text, cp.helperHandlers())
}

func (cp *compilation) helperHandlers() map[string]handler {
	escaped := func(fn string) handler {
		return withArgs(func(args string) string { return stmt("echo", "e("+fn+"("+args+"))") })
	}
	trusted := func(fn string) handler {
		return withArgs(call("echo", fn))
	}
	return map[string]handler{
		"json":     trusted("json_encode"),
		"js":       trusted("js"),
		"date":     escaped("date_format"),
		"datetime": withArgs(datetime),
		"ago":      escaped("ago"),
		"number":   escaped("number_format"),
		"money":    escaped("money"),
		"percent":  escaped("percent"),
		"bytes":    escaped("bytes"),
		"slug":     escaped("slug"),
		"upper": withArgs(func(args string) string {
			return stmt("echo", "e(upper(str("+args+")))")
		}),
		"lower": withArgs(func(args string) string {
			return stmt("echo", "e(lower(str("+args+")))")
		}),
		"title":       escaped("title"),
		"limit":       escaped("limit"),
		"nl2br":       trusted("nl2br"),
		"markdown":    cp.markdown,
		"endmarkdown": bare("<?go echo markdown(blade.StopCapture()) ?>"),
		"sanitize":    trusted("sanitize"),
		"asset":       escaped("blade.Asset"),
		"route":       escaped("blade.Route"),
		"config":      escaped("blade.Config"),
		"dump":        trusted("dump"),
		"lang":        escaped("blade.Trans"),
		"choice":      escaped("blade.Choice"),
		"inject":      withArgs(inject),
		"vite":        trusted("blade.Vite"),
	}
}

func datetime(args string) string {
	parts := splitArgs(args)
	if len(parts) == 1 {
		return stmt("echo", "e(date_format("+parts[0]+", '2006-01-02 15:04'))")
	}
	return stmt("echo", "e(date_format("+args+"))")
}

// markdown is inline with arguments and a capture block without.
func (cp *compilation) markdown(d directive) (string, bool, bool) {
	if d.hasArgs && strings.TrimSpace(d.args) != "" {
		return stmt("echo", "markdown("+d.args+")"), true, true
	}
	return "<?go do blade.StartCapture() ?>", false, true
}

func inject(args string) string {
	parts := splitArgs(args)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "$") {
		return stmt("do", "blade.Service("+args+")")
	}
	return stmt("set", parts[0]+" = blade.Service("+parts[1]+")")
}
