// internal/browser/elements.go
package browser

import (
	"fmt"
	"strings"
)

// InteractiveSelector is the base CSS selector for actionable elements.
const InteractiveSelector = `a, button, input, select, textarea, ` +
	`[role="button"], [role="link"], [role="tab"], ` +
	`[role="option"], [role="menuitem"], [onclick]`

// collectVisibleElementsJS builds the ordered `els` array of visible
// interactive DOM elements. Every script that reasons about element indices is
// generated from this one snippet via elementsScript, so the ordinal an
// observation reports is provably the ordinal a later click resolves.
//
// Visibility: positive bounding box and vertical intersection with the
// viewport. Elements without any labeling text are skipped unless they are
// form inputs.
const collectVisibleElementsJS = `
const sel = '` + InteractiveSelector + `';
const seen = new WeakSet();
const els = [];
function isVis(el) {
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0 && r.bottom > 0 && r.top < window.innerHeight;
}
function addEl(el) {
    if (seen.has(el)) return;
    if (!isVis(el)) return;
    const t = el.tagName;
    const txt = (el.innerText || el.value || el.getAttribute('aria-label')
                 || el.getAttribute('placeholder') || el.title || '').trim();
    if (!txt && t !== 'INPUT' && t !== 'TEXTAREA' && t !== 'SELECT') return;
    seen.add(el);
    els.push(el);
}
for (const el of document.querySelectorAll(sel)) { addEl(el); }
`

// elementsScript wraps a body that consumes `els` into a self-invoking
// expression suitable for Runtime.evaluate.
func elementsScript(body string) string {
	return "(() => {\n" + collectVisibleElementsJS + "\n" + body + "\n})()"
}

// listElementsJS returns the observation-side listing script.
func listElementsJS() string {
	return elementsScript(`
return els.map((el, i) => ({
    index: i,
    tag: el.tagName.toLowerCase(),
    text: (el.innerText || el.value || el.getAttribute('aria-label')
           || el.getAttribute('placeholder') || el.title || '').trim().slice(0, 80),
}));`)
}

// clickByIndexJS returns the action-side click script for element i.
func clickByIndexJS(i int) string {
	return elementsScript(fmt.Sprintf(`
if (%d >= els.length) return {ok: false, count: els.length};
els[%d].click();
return {ok: true, count: els.length};`, i, i))
}

// focusByIndexJS returns the action-side focus script for element i.
func focusByIndexJS(i int) string {
	return elementsScript(fmt.Sprintf(`
if (%d >= els.length) return {ok: false, count: els.length};
els[%d].focus();
els[%d].click();
return {ok: true, count: els.length};`, i, i, i))
}

// focusedElementJS describes the currently focused element, or null.
const focusedElementJS = `(() => {
    const el = document.activeElement;
    if (!el || el.tagName === 'BODY') return "";
    const label = el.getAttribute('aria-label') || el.getAttribute('placeholder') || el.name || el.id || '';
    return (el.tagName.toLowerCase() + (el.type ? '[' + el.type + ']' : '') + (label ? ' ' + label : '')).trim();
})()`

// ElementInfo is one entry of the observation-side listing.
type ElementInfo struct {
	Index int    `json:"index"`
	Tag   string `json:"tag"`
	Text  string `json:"text"`
}

// indexedMatch is the action-side evaluation result.
type indexedMatch struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// FormatElements renders the indexed listing handed to the planner. The
// ordinals printed here are the contract for BROWSER_CLICK / BROWSER_TYPE.
func FormatElements(els []ElementInfo) string {
	if len(els) == 0 {
		return ""
	}
	var b strings.Builder
	for _, el := range els {
		fmt.Fprintf(&b, "[%d] <%s> %s\n", el.Index, el.Tag, el.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
