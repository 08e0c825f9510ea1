package browser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Each script is a function expression called with JSON-encoded arguments.
// Element scripts return false when the selector matches nothing.

const clickScript = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.click();
	return true;
}`

const scrollIntoViewScript = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({behavior: "smooth", block: "center"});
	return true;
}`

const highlightScript = `(sel, ms) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const keep = {
		border: el.style.border,
		backgroundColor: el.style.backgroundColor,
		boxShadow: el.style.boxShadow,
		transition: el.style.transition,
	};
	el.style.border = "3px solid #ff4444";
	el.style.backgroundColor = "rgba(255, 68, 68, 0.1)";
	el.style.boxShadow = "0 0 10px rgba(255, 68, 68, 0.5)";
	el.style.transition = "all 0.3s ease";
	if (ms > 0) setTimeout(() => Object.assign(el.style, keep), ms);
	return true;
}`

const setTextScript = `(sel, text) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.focus();
	if ("value" in el && (el.tagName === "INPUT" || el.tagName === "TEXTAREA")) {
		el.value = text;
	} else {
		el.textContent = text;
	}
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
}`

const scrollToBottomScript = `() => {
	window.scrollTo({top: document.documentElement.scrollHeight, behavior: "smooth"});
	return true;
}`

const metricsScript = `() => ({
	scrollY: window.scrollY,
	viewportHeight: window.innerHeight,
	scrollHeight: document.documentElement.scrollHeight,
})`

const toastScript = `(level, message) => {
	const colors = {success: "#52c41a", error: "#ff4d4f", info: "#1677ff"};
	const box = document.createElement("div");
	box.textContent = message;
	Object.assign(box.style, {
		position: "fixed", top: "20px", left: "50%", transform: "translateX(-50%)",
		zIndex: "2147483647", padding: "10px 20px", borderRadius: "6px",
		color: "#fff", fontSize: "14px", boxShadow: "0 4px 12px rgba(0,0,0,0.15)",
		background: colors[level] || colors.info,
	});
	document.body.appendChild(box);
	setTimeout(() => box.remove(), 3000);
	return true;
}`

// call renders a call of fn with args encoded as JSON literals. The result
// goes to Runtime.evaluate, never into markup, so HTML is left unescaped.
func call(fn string, args ...any) (string, error) {
	parts := make([]string, len(args))
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, a := range args {
		buf.Reset()
		if err := enc.Encode(a); err != nil {
			return "", fmt.Errorf("encode argument %d: %w", i, err)
		}
		parts[i] = strings.TrimSuffix(buf.String(), "\n")
	}
	return "(" + fn + ")(" + strings.Join(parts, ", ") + ")", nil
}
