// Package imf defines the input and output data model of the converter.
//
// The input side is the relations mapping produced by the second generation
// pass: a JSON object keyed by component display name, each value carrying
// the component's tagID and its relations:
//
//	{
//	  "Cooling system_A001": {"tagID": "A001", "partOf": [], "fulfills": ["cool fluid"]},
//	  "pump system_B22":     {"tagID": "B22", "partOf": ["Cooling system_A001"]}
//	}
//
// [ParseRelations] decodes it into an ordered []Component. Key order is part
// of the contract: label assignment and layout are defined in terms of it, so
// the mapping is never routed through a plain Go map.
//
// The output side is the IMF graph document ([Document]): block nodes for
// products and functions, and part/fulfilled edges with spatial handles,
// in the node-link shape consumed by the diagram editor.
//
// # Soft findings
//
// Problems that do not invalidate the document (a parent name that does not
// resolve, a cyclic partOf chain, a dangling connectedTo target) are
// reported as [Issue] values next to the result rather than as errors.
package imf
