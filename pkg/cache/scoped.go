package cache

// ScopedKeyer prefixes every key of an inner Keyer, so several deployments
// (or a test run) can share one Redis without colliding:
//
//	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "imfgraph:prod:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner (DefaultKeyer when nil) with prefix.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// GenerationKey implements Keyer.
func (k *ScopedKeyer) GenerationKey(textHash string, opts GenerationKeyOpts) string {
	return k.prefix + k.inner.GenerationKey(textHash, opts)
}

// RecoverKey implements Keyer.
func (k *ScopedKeyer) RecoverKey(textHash string) string {
	return k.prefix + k.inner.RecoverKey(textHash)
}

// ConvertKey implements Keyer.
func (k *ScopedKeyer) ConvertKey(inputHash string, opts ConvertKeyOpts) string {
	return k.prefix + k.inner.ConvertKey(inputHash, opts)
}

// RenderKey implements Keyer.
func (k *ScopedKeyer) RenderKey(docHash, format string) string {
	return k.prefix + k.inner.RenderKey(docHash, format)
}
