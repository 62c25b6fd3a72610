package host

import (
	"fmt"
	"html"
	"strings"
)

// relocateScript moves every teleport template into its target once the DOM
// is ready. Scripts inside relocated content are re-created so the browser
// executes them, carrying over their attributes and the CSP nonce.
const relocateScript = `(function(){var n=%q;function run(){document.querySelectorAll('template[data-blade-teleport]').forEach(function(t){var target=document.querySelector(t.getAttribute('data-blade-teleport'));if(!target){return;}var f=t.content.cloneNode(true);f.querySelectorAll('script').forEach(function(o){var s=document.createElement('script');Array.prototype.forEach.call(o.attributes,function(a){s.setAttribute(a.name,a.value);});if(n){s.nonce=n;}s.textContent=o.textContent;o.parentNode.replaceChild(s,o);});target.appendChild(f);t.parentNode.removeChild(t);});}if(document.readyState==='loading'){document.addEventListener('DOMContentLoaded',run);}else{run();}})();`

func (s *State) startTeleport(target string) {
	s.teleportStack = append(s.teleportStack, target)
	s.pushSink()
}

// stopTeleport closes the innermost teleport, or the innermost one with the
// given target. Teleports close in stack order, so naming an outer target
// while an inner one is still open is an error.
func (s *State) stopTeleport(target string) error {
	if len(s.teleportStack) == 0 {
		return ErrTeleportNotOpen
	}
	top := s.teleportStack[len(s.teleportStack)-1]
	if target != "" && target != top {
		for _, open := range s.teleportStack {
			if open == target {
				return fmt.Errorf("teleport %q closed while %q is still open", target, top)
			}
		}
		return fmt.Errorf("%w: %q", ErrTeleportNotOpen, target)
	}
	s.teleportStack = s.teleportStack[:len(s.teleportStack)-1]
	content := s.popSink()
	if _, ok := s.teleports[top]; !ok {
		s.teleportOrder = append(s.teleportOrder, top)
	}
	s.teleports[top] = append(s.teleports[top], content)
	return nil
}

// HasTeleports reports whether captured teleports are waiting to be emitted.
func (s *State) HasTeleports() bool {
	return len(s.teleportOrder) > 0
}

// Teleport returns the content captured for target.
func (s *State) Teleport(target string) string {
	return strings.Join(s.teleports[target], "")
}

// RenderTeleports emits one template per target followed by a single
// relocation script, then forgets the captured content.
func (s *State) RenderTeleports(nonce string) HTML {
	if !s.HasTeleports() {
		return ""
	}
	var sb strings.Builder
	for _, target := range s.teleportOrder {
		sb.WriteString(`<template data-blade-teleport="`)
		sb.WriteString(html.EscapeString(target))
		sb.WriteString(`">`)
		sb.WriteString(s.Teleport(target))
		sb.WriteString("</template>\n")
	}
	sb.WriteString("<script")
	if nonce != "" {
		sb.WriteString(` nonce="`)
		sb.WriteString(html.EscapeString(nonce))
		sb.WriteByte('"')
	}
	sb.WriteString(">")
	sb.WriteString(fmt.Sprintf(relocateScript, nonce))
	sb.WriteString("</script>")

	s.teleports = map[string][]string{}
	s.teleportOrder = nil
	return HTML(sb.String())
}

// InjectTeleports places pending teleports before the closing body tag, or
// appends them when the document has none.
func (s *State) InjectTeleports(doc, nonce string) string {
	if !s.HasTeleports() {
		return doc
	}
	block := string(s.RenderTeleports(nonce))
	if i := strings.LastIndex(strings.ToLower(doc), "</body>"); i >= 0 {
		return doc[:i] + block + doc[i:]
	}
	return doc + block
}
