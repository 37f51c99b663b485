// Package pkg provides the libraries behind imfgraph.
//
// # Overview
//
// imfgraph turns the component descriptions a text generator extracts from a
// technical document into an IMF graph document: product nodes arranged as a
// part-of hierarchy, function nodes in a layer below, and the part/fulfilled
// edges between them.
//
//  1. [recovery] - near-JSON generator output to a strict JSON object
//  2. [imf] - components, relations parsing and the graph document model
//  3. [hierarchy] - the part-of forest with unresolved and cyclic references
//  4. [layout] - subtree-width positions for products and functions
//  5. [convert] - node and edge assembly
//  6. [pipeline] - cached orchestration of all stages
//
// Around the core: [ai] (text generation), [loader/pdf] (document text),
// [render] (previews), [store] (processed documents), [task] (background
// processing), [server] (HTTP), [cache], [config], [observability] and
// [errors].
//
// # Data Flow
//
//	PDF ──pdftotext──▶ text ──generator──▶ hierarchy, relations (near-JSON)
//	                                             │
//	                                       [recovery]
//	                                             ▼
//	                  [imf] components ──▶ [hierarchy] ──▶ [layout] ──▶ [convert]
//	                                                                     │
//	                                                     IMF document ◀──┘
package pkg
