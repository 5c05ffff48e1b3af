package browser

// elementsScript numbers every visible interactive element in the viewport
// and returns one line per element, `[id] <tag label="..." kind="...">`.
// Headings are emitted unnumbered to give the model some page structure.
// The ids are stamped onto the DOM as data-inference-id so an executor can
// resolve them later.
const elementsScript = `() => {
  let idCounter = 1;
  const interactiveTags = new Set(['a', 'button', 'input', 'textarea', 'select', 'details', 'summary']);
  const interactiveRoles = new Set(['button', 'link', 'checkbox', 'menuitem', 'tab', 'textbox', 'combobox', 'option']);

  document.querySelectorAll('[data-inference-id]').forEach(el => el.removeAttribute('data-inference-id'));

  function cleanText(text) {
    if (!text) return '';
    const res = text.replace(/\s+/g, ' ').trim();
    return res.length > 100 ? res.slice(0, 100) + '...' : res;
  }

  function escapeAttr(value) {
    return value.replace(/"/g, '\\"');
  }

  function isVisible(el) {
    if (!el || !el.getBoundingClientRect) return false;
    if (el.getAttribute('aria-hidden') === 'true') return false;
    const rect = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    const inViewport = rect.top < window.innerHeight && rect.bottom > 0 &&
      rect.left < window.innerWidth && rect.right > 0;
    return rect.width > 0 && rect.height > 0 &&
      style.visibility !== 'hidden' && style.display !== 'none' && style.opacity !== '0' &&
      inViewport;
  }

  function isInteractive(el) {
    const tag = el.tagName.toLowerCase();
    const role = (el.getAttribute('role') || '').toLowerCase();
    const tabIndex = el.getAttribute('tabindex');
    return interactiveTags.has(tag) || interactiveRoles.has(role) ||
      (tabIndex !== null && tabIndex !== '-1') || el.onclick != null;
  }

  function inDialog(el) {
    for (let cur = el; cur && cur !== document.body; cur = cur.parentElement) {
      const role = (cur.getAttribute('role') || '').toLowerCase();
      if (role === 'dialog' || role === 'alertdialog' || cur.getAttribute('aria-modal') === 'true') return true;
    }
    return false;
  }

  function kindOf(el) {
    const tag = el.tagName.toLowerCase();
    const role = (el.getAttribute('role') || '').toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    if (tag === 'button' || role === 'button') return 'button';
    if (tag === 'a' || role === 'link') return 'link';
    if (tag === 'input') {
      if (['checkbox', 'radio', 'search'].includes(type)) return type;
      return 'input';
    }
    return '';
  }

  function describe(el, tag) {
    const parts = ['<' + tag];
    let label = cleanText(el.innerText || el.textContent || '');
    if (!label) label = cleanText(el.getAttribute('aria-label') || '');
    if (!label) label = cleanText(el.getAttribute('title') || '');
    if ((tag === 'input' || tag === 'textarea') && !label) {
      label = cleanText(el.getAttribute('placeholder') || '');
    }
    if (label) parts.push('label="' + escapeAttr(label) + '"');
    const kind = kindOf(el);
    if (kind) parts.push('kind="' + kind + '"');
    if (inDialog(el)) parts.push('context="dialog"');
    if (tag === 'input' || tag === 'textarea') {
      const val = cleanText(el.value);
      if (val) parts.push('value="' + escapeAttr(val) + '"');
    }
    return parts.join(' ') + '>';
  }

  const lines = [];
  function walk(node, depth) {
    if (!node || depth > 40 || node.nodeType !== Node.ELEMENT_NODE) return;
    const el = node;
    const tag = el.tagName.toLowerCase();
    if (['script', 'style', 'svg', 'path', 'noscript'].includes(tag)) return;
    if (!isVisible(el)) return;

    if (isInteractive(el)) {
      const id = idCounter++;
      el.setAttribute('data-inference-id', String(id));
      lines.push('[' + id + '] ' + describe(el, tag));
    } else if (['h1', 'h2', 'h3', 'h4', 'h5'].includes(tag)) {
      const text = cleanText(el.innerText);
      if (text) lines.push('<' + tag + '> ' + text);
    }
    for (const child of el.children) walk(child, depth + 1);
  }

  walk(document.body, 0);
  return lines.join('\n');
}`
