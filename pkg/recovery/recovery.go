// Package recovery turns near-JSON generator output into a strict JSON object.
//
// Text generators asked for a JSON object regularly return something close
// to one: wrapped in a ```json fence or explanatory prose, broken across lines
// inside a string, missing a comma between two members, carrying a trailing
// comma, or cut off before the final brace. Recovery runs a fixed, ordered
// pipeline of text-level repairs and then parses strictly:
//
//  1. Strip every newline character.
//  2. Insert the comma missing between a closing bracket/brace that follows a
//     string and the quote opening the next key.
//  3. Insert a comma after any closing bracket/brace followed by a character
//     that is neither a comma nor another closer.
//  4. Drop trailing commas in front of a closing brace.
//  5. Keep only the span from the first '{' to the last '}'.
//  6. Parse strictly.
//  7. On a missing-delimiter error, append one '}' and parse once more.
//
// Anything else is a MALFORMED_STRUCTURED_OUTPUT error; there is no partial
// result. The error class is deliberately narrow. The repairs can produce a
// mapping that is valid but not what the generator meant (a comma inserted
// in the wrong place), which callers accept as a data-quality risk.
//
// Text whose outer object already parses is returned as is, so brackets
// inside string literals never trigger a repair. Applying [Repair] twice
// gives the same text as applying it once.
package recovery

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/matzehuels/imfgraph/pkg/errors"
)

// Object is a recovered JSON object. Top-level key order follows the source
// text; nested objects decode to map[string]any and arrays to []any.
type Object = orderedmap.OrderedMap[string, any]

var (
	// `"` ws closer ws `"`: a member ended and the next key starts without a comma.
	reCloserBeforeKey = regexp.MustCompile(`"\s*([\]}])\s*"`)
	// closer ws X, where X is not a separator, closer, ')' or '*'.
	reCloserMissingComma = regexp.MustCompile(`([\]}])\s*([^\],})\s*\n])`)
	// one or more ',' ws before '}'
	reTrailingComma = regexp.MustCompile(`(,\s*)+}`)
)

// Repair applies the text-level fixes (steps 1–4) in order.
func Repair(text string) string {
	s := strings.ReplaceAll(text, "\n", "")
	s = reCloserBeforeKey.ReplaceAllString(s, `"$1,"`)
	s = reCloserMissingComma.ReplaceAllString(s, `$1,$2`)
	s = reTrailingComma.ReplaceAllString(s, `}`)
	return s
}

// Extract returns the span from the first '{' to the last '}' of text.
func Extract(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New(errors.ErrCodeMalformedOutput, "no JSON object found in generator output")
	}
	return text[start : end+1], nil
}

// Result is recovered JSON and how it was obtained.
type Result struct {
	Data []byte
	// Retried reports that the closing-brace repair was needed.
	Retried bool
}

// Recover runs the full pipeline and returns strictly valid JSON bytes
// holding one object.
func Recover(text string) (*Result, error) {
	if content, err := Extract(text); err == nil && validateObject([]byte(content)) == nil {
		return &Result{Data: []byte(content)}, nil
	}

	content, err := Extract(Repair(text))
	if err != nil {
		return nil, err
	}

	data := []byte(content)
	err = validateObject(data)
	if err == nil {
		return &Result{Data: data}, nil
	}
	if !isMissingDelimiter(err) {
		return nil, errors.Wrap(errors.ErrCodeMalformedOutput, err, "parse generator output")
	}

	fixed := []byte(strings.TrimRightFunc(content, isSpace) + "}")
	if retryErr := validateObject(fixed); retryErr != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedOutput, retryErr, "parse generator output after closing brace repair")
	}
	return &Result{Data: fixed, Retried: true}, nil
}

// Bytes is Recover without the retry flag. Use it when the object is decoded
// into a typed value afterwards.
func Bytes(text string) ([]byte, error) {
	res, err := Recover(text)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Parse recovers text into an ordered nested mapping.
func Parse(text string) (*Object, error) {
	data, err := Bytes(text)
	if err != nil {
		return nil, err
	}
	obj := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, obj); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedOutput, err, "decode recovered object")
	}
	return obj, nil
}

// Decode recovers text and unmarshals it into out.
func Decode(text string, out any) error {
	data, err := Bytes(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeMalformedOutput, err, "decode recovered object")
	}
	return nil
}

// validateObject parses data strictly and checks it is a single object.
func validateObject(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if _, ok := v.(map[string]any); !ok {
		return stderrors.New("top-level value is not an object")
	}
	return nil
}

// isMissingDelimiter reports whether err is the class of syntax error a
// missing closing brace produces: input ending early, or a member or
// element not followed by ',' or a closer.
func isMissingDelimiter(err error) bool {
	var syn *json.SyntaxError
	if !stderrors.As(err, &syn) {
		return false
	}
	msg := syn.Error()
	return strings.Contains(msg, "unexpected end of JSON input") ||
		strings.Contains(msg, "after object key:value pair") ||
		strings.Contains(msg, "after array element")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// Compact re-encodes valid JSON without insignificant whitespace. Useful for
// feeding a recovered first-pass object back into a prompt.
func Compact(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
