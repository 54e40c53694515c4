package extract

import (
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
)

// KeyResolver applies primary/fallback chains to row nodes.
type KeyResolver struct {
	Diag *Diagnostics
}

// Resolve returns the row's identifying value. The primary path wins when it
// yields a non-empty text; otherwise the fallback is tried the same way.
// Absent paths warn once under "<label>.primary" / "<label>.fallback". An
// empty string is not a warning; it just does not count as a key.
func (k KeyResolver) Resolve(n *catalog.Node, primary, fallback catalog.Path, label string) (string, bool) {
	if v, ok := k.text(n, primary, label+".primary"); ok && v != "" {
		return v, true
	}
	if v, ok := k.text(n, fallback, label+".fallback"); ok && v != "" {
		return v, true
	}
	return "", false
}

func (k KeyResolver) text(n *catalog.Node, p catalog.Path, label string) (string, bool) {
	if p.IsEmpty() {
		return "", false
	}
	v, ok := catalog.ResolveText(n, p)
	if !ok && k.Diag != nil {
		k.Diag.MissingPath(label, p.String())
	}
	return v, ok
}

// ResolveText is the warning-aware single value lookup used for fields.
func (k KeyResolver) ResolveText(n *catalog.Node, p catalog.Path, label string) (string, bool) {
	return k.text(n, p, label)
}

// ResolveAttribute is the warning-aware attribute lookup used for fields.
func (k KeyResolver) ResolveAttribute(n *catalog.Node, attr, label string) (string, bool) {
	v, ok := catalog.ResolveAttribute(n, attr)
	if !ok && k.Diag != nil {
		k.Diag.MissingAttribute(label, attr)
	}
	return v, ok
}
