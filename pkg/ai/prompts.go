package ai

import (
	"fmt"
	"strings"
)

// Pass names a generation pass; it is part of the generation cache key.
type Pass string

const (
	PassHierarchy Pass = "hierarchy"
	PassRelations Pass = "relations"
	PassChat      Pass = "chat"
)

const hierarchyInstructions = `Read the document and answer only from it.
1) Determine the name of the system as "system_name".
2) List the components of the system as keys of the object under the system name.
3) List the subcomponents of each component as keys of the next level object. Use {} when a component has none.
4) List the subcomponents of each subcomponent as an array of strings. Use [] when there are none.
Append the tagID of every component to its name after an underscore. The tagID is usually a number, or letters and numbers, that distinguishes components with the same name in different subsystems.

Respond with JSON only, formatted like this example:

` + "```json" + `
{"Cooling system_A001":
    {"pump system_B22":
        {"pump_B223": ["subcomponent_1", "subcomponent_2"],
         "motor_B224": ["subcomponent_1"],
         "safety instrument_B225": ["subcomponent_1"]},
     "tank system_C99": {},
     "gas chiller_K12": {}
    }
}
` + "```"

const relationsInstructions = `Build the information model of the system from the document and the component hierarchy above. Cover every component of the hierarchy. For each component give these relations:
"tagID": the identifier of the component in the document, usually a number or letters and numbers.
"partOf": the component this one is a direct part of, taken from the hierarchy. Every component is part of the system; the system itself has an empty list.
"connectedTo": components this one is physically connected to.
"fulfills": short phrases naming the functions of the component, or an empty list.
"hasTerminal": terminals of the component. A terminal is a point where exactly one component receives input or produces output.

Respond with JSON only, keyed by component name, formatted like this example:

{
  "Cooling system": {
    "tagID": "JG1",
    "partOf": [],
    "fulfills": ["cooling"],
    "connectedTo": [],
    "hasTerminal": ["Cooled Gas", "Warm Seawater"]
  },
  "REP assembly 810": {
    "tagID": "A-GD03",
    "partOf": ["Cooling system"],
    "fulfills": ["function1", "function2"],
    "connectedTo": ["Voltage Transforming System"],
    "hasTerminal": ["Warm Seawater"]
  }
}`

func document(text string) string {
	return fmt.Sprintf("Document:\n\"\"\"\n%s\n\"\"\"\n\n", strings.TrimSpace(text))
}

// HierarchyPrompt asks for the nested component hierarchy of a document.
func HierarchyPrompt(text string) string {
	return document(text) + "Instructions:\n" + hierarchyInstructions
}

// RelationsPrompt asks for the relations mapping given the hierarchy
// recovered from the first pass.
func RelationsPrompt(text, hierarchy string) string {
	return document(text) +
		"Component hierarchy:\n" + hierarchy + "\n\n" +
		"Instructions:\n" + relationsInstructions
}

// ChatPrompt asks a question about a document.
func ChatPrompt(text, question string) string {
	return "Based on the following document, answer the question and cite the passage you used.\n\n" +
		document(text) +
		"Question: " + strings.TrimSpace(question) + "\n\nAnswer:"
}
