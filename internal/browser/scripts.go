package browser

// Functions called with this bound to a resolved node.
const (
	matchesJS = `function(sel) { return this.nodeType === 1 && this.matches(sel); }`

	naturalSizeJS = `function() { return [this.naturalWidth || 0, this.naturalHeight || 0]; }`

	parentPositionedJS = `function() {
	const p = this.parentElement;
	if (!p) return false;
	return getComputedStyle(p).position !== 'static';
}`

	mountJS = `function(raw) {
	const spec = JSON.parse(raw);
	const img = this;
	if (!img.isConnected || !img.parentElement) return false;
	let host = img.parentElement;
	if (spec.wrap) {
		const wrap = document.createElement('span');
		wrap.className = 'snapseek-wrap';
		wrap.setAttribute('data-snapseek-wrap', spec.token);
		wrap.style.position = 'relative';
		wrap.style.display = getComputedStyle(img).display === 'block' ? 'block' : 'inline-block';
		if (img.style.width && img.style.width.endsWith('%')) wrap.style.width = img.style.width;
		host.insertBefore(wrap, img);
		wrap.appendChild(img);
		host = wrap;
	}
	spec.buttons.forEach(function(b, i) {
		const btn = document.createElement('button');
		btn.type = 'button';
		btn.className = 'snapseek-btn';
		btn.setAttribute('data-snapseek-button', b.id);
		btn.setAttribute('data-snapseek-for', spec.token);
		btn.setAttribute('data-format', b.format);
		btn.setAttribute('data-state', 'idle');
		btn.style.top = (6 + i * 30) + 'px';
		btn.textContent = b.label;
		host.appendChild(btn);
	});
	img.setAttribute('data-snapseek-processed', spec.token);
	return true;
}`
)
