package proxy

// interceptionScript is appended to every rewritten HTML page. It
// catches navigations the static rewrite cannot reach: dynamically
// created links, script-driven form submissions, and assignments to
// window.location. Captured navigations are surfaced to the embedding
// client via postMessage so it can route them through the proxy.
const interceptionScript = `<script>
(function() {
  if (window.__proxyIntercept) return;
  window.__proxyIntercept = true;

  function notify(url) {
    try {
      window.parent.postMessage({ type: 'proxy-navigate', url: url }, '*');
    } catch (e) {}
  }

  document.addEventListener('click', function(e) {
    var el = e.target;
    while (el && el.tagName !== 'A') el = el.parentElement;
    if (!el || !el.href) return;
    var href = el.getAttribute('href') || '';
    if (href.indexOf('#') === 0 || href.indexOf('javascript:') === 0) return;
    if (href.indexOf('/proxy/') === -1) {
      e.preventDefault();
      notify(el.href);
    }
  }, true);

  document.addEventListener('submit', function(e) {
    var form = e.target;
    if (!form || !form.action) return;
    if (form.action.indexOf('/proxy/') === -1) {
      e.preventDefault();
      notify(form.action);
    }
  }, true);

  try {
    var loc = window.location;
    Object.defineProperty(window, 'location', {
      get: function() { return loc; },
      set: function(url) { notify(url); }
    });
  } catch (e) {}
})();
</script>`

// compatStylesheet neutralizes viewport-pinned positioning that breaks
// when a page renders inside the client frame.
const compatStylesheet = `<style>
  [style*="position: fixed"], [style*="position:fixed"] { position: static !important; }
  [style*="position: sticky"], [style*="position:sticky"] { position: relative !important; }
  body { overflow-x: visible !important; width: 100% !important; }
</style>`
