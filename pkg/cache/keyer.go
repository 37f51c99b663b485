package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer builds cache keys for the pipeline stages.
type Keyer interface {
	// GenerationKey identifies one generation pass over a document.
	GenerationKey(textHash string, opts GenerationKeyOpts) string
	// RecoverKey identifies the recovered form of a generator response.
	RecoverKey(textHash string) string
	// ConvertKey identifies the IMF document built from a relations mapping.
	ConvertKey(inputHash string, opts ConvertKeyOpts) string
	// RenderKey identifies a rendered preview of an IMF document.
	RenderKey(docHash, format string) string
}

// GenerationKeyOpts are the generator settings that change its output.
type GenerationKeyOpts struct {
	Pass        string  `json:"pass"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Context     string  `json:"context,omitempty"` // hash of pass-1 output for pass 2
}

// ConvertKeyOpts are the layout settings that change the document.
type ConvertKeyOpts struct {
	XGap        float64 `json:"x_gap"`
	YGap        float64 `json:"y_gap"`
	FunctionY   float64 `json:"function_y"`
	FunctionGap float64 `json:"function_gap"`
	NodeWidth   float64 `json:"node_width"`
	NodeHeight  float64 `json:"node_height"`
}

// DefaultKeyer produces keys of the form "<stage>:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// GenerationKey implements Keyer.
func (DefaultKeyer) GenerationKey(textHash string, opts GenerationKeyOpts) string {
	return hashKey("generate", textHash, opts)
}

// RecoverKey implements Keyer.
func (DefaultKeyer) RecoverKey(textHash string) string {
	return "recover:" + textHash
}

// ConvertKey implements Keyer.
func (DefaultKeyer) ConvertKey(inputHash string, opts ConvertKeyOpts) string {
	return hashKey("convert", inputHash, opts)
}

// RenderKey implements Keyer.
func (DefaultKeyer) RenderKey(docHash, format string) string {
	return fmt.Sprintf("render:%s:%s", format, docHash)
}

// hashKey returns prefix:sha256(json(parts)).
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Hash returns the hex SHA-256 of data (64 characters).
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
