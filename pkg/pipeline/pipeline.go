// Package pipeline runs the document → graph pipeline with caching.
//
// This package is shared by the CLI, the HTTP server and the background task
// runner so that every entry point recovers, converts and renders the same
// way.
//
// # Stages
//
//  1. Generate: ask the text generator for the component hierarchy, then for
//     the relations mapping (see [Runner.ProcessDocument]).
//  2. Recover: turn generator output into strict JSON (package recovery).
//  3. Convert: build the IMF document (package convert).
//  4. Render: optional preview (package render).
//
// Each stage can be run on its own. Every stage result is cached under a key
// derived from its input hash and the options that change its output;
// identical concurrent requests share one computation.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	res, hit, err := runner.ConvertTextWithCacheInfo(ctx, generatorOutput, pipeline.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	data, _ := imf.MarshalDocument(res.Document)
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/convert"
	"github.com/matzehuels/imfgraph/pkg/layout"
	"github.com/matzehuels/imfgraph/pkg/render"
)

// =============================================================================
// Options
// =============================================================================

// Options configures conversion and rendering.
type Options struct {
	Layout layout.Options `json:"layout"`
	Render render.Options `json:"render"`

	// Refresh skips cache reads; results are still written.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Now    func() time.Time `json:"-"`
	Logger *log.Logger      `json:"-"`
}

// DefaultOptions returns the standard geometry and preview settings.
func DefaultOptions() Options {
	return Options{
		Layout: layout.DefaultOptions(),
		Render: render.DefaultOptions(),
	}
}

// Validate checks the geometry.
func (o Options) Validate() error {
	return o.Layout.Validate()
}

// ConvertOptions returns the converter options.
func (o Options) ConvertOptions() convert.Options {
	return convert.Options{Layout: o.Layout, Now: o.Now}
}

// ConvertKeyOpts returns the parts of the options that change a conversion.
func (o Options) ConvertKeyOpts() cache.ConvertKeyOpts {
	return cache.ConvertKeyOpts{
		XGap:        o.Layout.XGap,
		YGap:        o.Layout.YGap,
		FunctionY:   o.Layout.FunctionY,
		FunctionGap: o.Layout.FunctionGap,
		NodeWidth:   o.Layout.NodeWidth,
		NodeHeight:  o.Layout.NodeHeight,
	}
}

// =============================================================================
// Progress
// =============================================================================

// Stage is a step of document processing, reported to progress callbacks.
type Stage struct {
	Progress int
	Message  string
}

// Processing stages, in order.
var (
	StageExtracting = Stage{Progress: 5, Message: "Extracting text..."}
	StageHierarchy  = Stage{Progress: 25, Message: "Identifying components..."}
	StageRelations  = Stage{Progress: 60, Message: "Constructing information model..."}
	StageConverting = Stage{Progress: 90, Message: "Building graph document..."}
	StageComplete   = Stage{Progress: 100, Message: "Processing complete!"}
)

// ProgressFunc receives stage updates. It may be nil.
type ProgressFunc func(Stage)

func (f ProgressFunc) report(s Stage) {
	if f != nil {
		f(s)
	}
}

// =============================================================================
// Results
// =============================================================================

// Processed is the output of a full document run.
type Processed struct {
	// Hierarchy is the recovered first-pass object, indented.
	Hierarchy []byte
	// Relations is the recovered relations mapping, indented.
	Relations []byte
	// Conversion holds the IMF document, issues and stats.
	Conversion *convert.Result
	CacheInfo  CacheInfo
	Stats      Stats
}

// Stats contains document processing timings.
type Stats struct {
	HierarchyTime time.Duration
	RelationsTime time.Duration
	ConvertTime   time.Duration
}

// CacheInfo tracks cache hits for each stage.
type CacheInfo struct {
	HierarchyHit bool
	RelationsHit bool
	ConvertHit   bool
}
