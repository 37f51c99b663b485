package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	c := NoopConversionHooks{}
	c.OnRecover(ctx, 120, true, nil)
	c.OnConvertStart(ctx, 3)
	c.OnConvertComplete(ctx, 3, 2, time.Millisecond, nil)
	c.OnIssue(ctx, "unresolved_reference", "pump", "boiler")

	g := NoopGenerationHooks{}
	g.OnGenerateStart(ctx, "hierarchy", "gpt-4o-mini")
	g.OnGenerateComplete(ctx, "hierarchy", "gpt-4o-mini", 100, 50, time.Second, nil)

	ch := NoopCacheHooks{}
	ch.OnCacheHit(ctx, "convert")
	ch.OnCacheMiss(ctx, "recover")
	ch.OnCacheSet(ctx, "render", 1024)

	tk := NoopTaskHooks{}
	tk.OnTaskStart(ctx, "id", "plant.pdf")
	tk.OnTaskComplete(ctx, "id", "completed", time.Second)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, ok := Conversion().(NoopConversionHooks); !ok {
		t.Error("Conversion() should default to NoopConversionHooks")
	}
	if _, ok := Generation().(NoopGenerationHooks); !ok {
		t.Error("Generation() should default to NoopGenerationHooks")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should default to NoopCacheHooks")
	}
	if _, ok := Task().(NoopTaskHooks); !ok {
		t.Error("Task() should default to NoopTaskHooks")
	}

	conv := &recordingConversionHooks{}
	SetConversionHooks(conv)
	if Conversion() != conv {
		t.Error("SetConversionHooks did not register hooks")
	}

	SetConversionHooks(nil)
	if Conversion() != conv {
		t.Error("SetConversionHooks(nil) replaced registered hooks")
	}

	Conversion().OnIssue(context.Background(), "cyclic_reference", "a", "b")
	if conv.issues != 1 {
		t.Errorf("issues = %d, want 1", conv.issues)
	}

	Reset()
	if _, ok := Conversion().(NoopConversionHooks); !ok {
		t.Error("Reset should restore NoopConversionHooks")
	}
}

type recordingConversionHooks struct {
	NoopConversionHooks
	issues int
}

func (r *recordingConversionHooks) OnIssue(context.Context, string, string, string) { r.issues++ }
