// Package textutil provides the text normalization shared by the name parser,
// the resolver, and library path formatting.
//
// The primary use cases are:
//   - Folding titles to an accent-free, punctuation-free comparison form
//   - Comparing titles by token-set overlap
//   - Sanitizing path segments for media-server friendly names
package textutil
