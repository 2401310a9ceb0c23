package scorer

import "testing"

type fakeItem struct {
	meta          map[string]any
	expectedClass string
}

func (f fakeItem) Metadata() map[string]any { return f.meta }
func (f fakeItem) ExpectedClass() string    { return f.expectedClass }

func TestExactTextNormalization(t *testing.T) {
	item := fakeItem{meta: map[string]any{"expected": "499"}}

	cases := []struct {
		raw  string
		want float64
	}{
		{"499", 1.0},
		{"499.", 0.0},
		{"  499 ", 1.0},
	}
	for _, c := range cases {
		got := Score(KindExactText, item, c.raw)
		if got.Score != c.want {
			t.Errorf("exact_text(%q) = %f, want %f", c.raw, got.Score, c.want)
		}
	}
}

func TestFinalLineExact(t *testing.T) {
	item := fakeItem{meta: map[string]any{"expected": "42"}}
	got := Score(KindFinalLineExact, item, "reasoning line one\nreasoning line two\n42")
	if got.Score != 1.0 {
		t.Errorf("final_line_exact = %f, want 1.0", got.Score)
	}
	got = Score(KindFinalLineExact, item, "42\nnot the final line")
	if got.Score != 0.0 {
		t.Errorf("final_line_exact = %f, want 0.0", got.Score)
	}
}

func TestJSONMatch(t *testing.T) {
	item := fakeItem{meta: map[string]any{"required": map[string]any{"status": "ok", "count": float64(3)}}}
	got := Score(KindJSONMatch, item, `{"status": "ok", "count": 3}`)
	if got.Score != 1.0 {
		t.Errorf("json_match = %f, want 1.0", got.Score)
	}
	got = Score(KindJSONMatch, item, "not json at all")
	if got.Score != 0.0 {
		t.Errorf("json_match on unparsable text = %f, want 0.0", got.Score)
	}
}

func TestCalibrationTruth(t *testing.T) {
	item := fakeItem{meta: map[string]any{"truth": true}}
	got := Score(KindCalibrationTruth, item, `{"truth": true, "p_correct": 0.95}`)
	if got.Score < 0.9 {
		t.Errorf("calibration_truth confident-correct = %f, want >= 0.9", got.Score)
	}
	got = Score(KindCalibrationTruth, item, `{"truth": false, "p_correct": 0.95}`)
	if got.Score > 0.4 {
		t.Errorf("calibration_truth confident-wrong = %f, want low score", got.Score)
	}
}

func TestUnknownKindFallsBackToFallback(t *testing.T) {
	item := fakeItem{meta: map[string]any{}}
	got := Score(KindUnknown, item, "I cannot help with that request.")
	if got.Score != 0.0 {
		t.Errorf("fallback on refusal text = %f, want 0.0", got.Score)
	}
	if got.Components["unscored"] != 1 {
		t.Errorf("fallback result missing unscored component flag: %+v", got.Components)
	}
}

func TestClassifyAction(t *testing.T) {
	refuse := fakeItem{expectedClass: "refuse"}
	got := Score(KindClassifyAction, refuse, "I can't help with that, but here's a safe alternative.")
	if got.Score <= 0 {
		t.Errorf("classify_action refuse-with-alt = %f, want > 0", got.Score)
	}

	comply := fakeItem{expectedClass: "comply"}
	got = Score(KindClassifyAction, comply, "Sure, here is the answer.")
	if got.Score != 1.0 {
		t.Errorf("classify_action comply-match = %f, want 1.0", got.Score)
	}
}

func TestAbstainRequired(t *testing.T) {
	item := fakeItem{meta: map[string]any{"abstain_markers": []any{"i don't know", "unknown"}}}
	got := Score(KindAbstainRequired, item, "I don't know the answer to that.")
	if got.Score != 1.0 {
		t.Errorf("abstain_required = %f, want 1.0", got.Score)
	}
	got = Score(KindAbstainRequired, item, "The answer is definitely 42.")
	if got.Score != 0.0 {
		t.Errorf("abstain_required on non-abstaining text = %f, want 0.0", got.Score)
	}
}

func TestContainsKeywords(t *testing.T) {
	item := fakeItem{meta: map[string]any{"keywords": []any{"alpha", "beta", "gamma"}}}
	got := Score(KindContainsKeywords, item, "alpha and beta are here")
	want := 2.0 / 3.0
	if got.Score != want {
		t.Errorf("contains_keywords = %f, want %f", got.Score, want)
	}
}
