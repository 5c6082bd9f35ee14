// internal/browser/session/scripts.go
package session

// Function declarations called with an element as `this`. Keep them self-contained:
// each call compiles in the element's own realm, which may be a same-origin frame.

const jsClick = `function() {
	const el = this;
	const view = (el.ownerDocument && el.ownerDocument.defaultView) || window;
	try { el.focus({preventScroll: true}); } catch (e) {}
	const r = el.getBoundingClientRect();
	const init = {bubbles: true, cancelable: true, composed: true, view: view,
		clientX: r.left + r.width / 2, clientY: r.top + r.height / 2, button: 0};
	el.dispatchEvent(new view.MouseEvent("mousedown", init));
	el.dispatchEvent(new view.MouseEvent("mouseup", init));
	el.click();
}`

const escapeBody = `
	const view = (el.ownerDocument && el.ownerDocument.defaultView) || window;
	const init = {key: "Escape", code: "Escape", keyCode: 27, which: 27,
		bubbles: true, cancelable: true, composed: true, view: view};
	el.dispatchEvent(new view.KeyboardEvent("keydown", init));
	el.dispatchEvent(new view.KeyboardEvent("keyup", init));
`

const jsEscape = `function() { const el = this;` + escapeBody + `}`

const jsEscapeDocument = `(() => { const el = document.documentElement;` + escapeBody + `})()`

const jsHide = `function() {
	this.setAttribute("data-lhm-hidden", "1");
	this.style.setProperty("display", "none", "important");
}`

// notifyBody tells editor frameworks the content changed the way a user edit would.
const notifyBody = `
	const view = (el.ownerDocument && el.ownerDocument.defaultView) || window;
	try {
		el.dispatchEvent(new view.InputEvent("beforeinput", {bubbles: true, cancelable: true, inputType: "insertText", data: data}));
	} catch (e) {}
	el.dispatchEvent(new view.InputEvent("input", {bubbles: true, inputType: "insertText", data: data}));
	el.dispatchEvent(new view.KeyboardEvent("keyup", {bubbles: true, key: " "}));
	el.dispatchEvent(new view.Event("change", {bubbles: true}));
`

const caretEnd = `
	const doc = el.ownerDocument;
	const sel = doc.getSelection();
	const range = doc.createRange();
	range.selectNodeContents(el);
	range.collapse(false);
	sel.removeAllRanges();
	sel.addRange(range);
`

const jsInsertText = `function(text) {
	const el = this;
	const doc = el.ownerDocument;
	el.focus();
	const sel = doc.getSelection();
	const range = doc.createRange();
	range.selectNodeContents(el);
	sel.removeAllRanges();
	sel.addRange(range);
	if (!doc.execCommand("insertText", false, text)) {
		el.textContent = text;
	}
	const data = text;` + notifyBody + `}`

const jsSetParagraphs = `function(markup) {
	const el = this;
	el.focus();
	el.innerHTML = markup;` + caretEnd + `
	const data = el.innerText;` + notifyBody + `}`

const jsClearEditor = `function() {
	const el = this;
	el.focus();
	el.innerHTML = "<p><br></p>";` + caretEnd + `
	const data = "";` + notifyBody + `}`

const jsInsertParagraph = `function() {
	const el = this;
	el.focus();
	if (!el.ownerDocument.execCommand("insertParagraph", false)) {
		const p = el.ownerDocument.createElement("p");
		p.appendChild(el.ownerDocument.createElement("br"));
		el.appendChild(p);` + caretEnd + `
	}
	const data = "\n";` + notifyBody + `}`
