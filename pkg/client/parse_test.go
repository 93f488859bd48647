package client

import "testing"

func TestParseAnalysisResult(t *testing.T) {
	raw := "```json\n" + `{
  "reference": {"label": "apriltag", "confidence": 0.82, "box": {"x": 0.4, "y": 0.5, "w": 0.02, "h": 0.03},},
  // model chatter
  "description": "black and white marker on grass"
}` + "\n```"

	res := ParseAnalysisResult(raw)
	if res.Fallback {
		t.Fatalf("unexpected fallback: %s", res.Description)
	}
	if res.Reference.Label != "apriltag" || res.Reference.Confidence != 0.82 {
		t.Errorf("unexpected detection %+v", res.Reference)
	}
	if res.Reference.Box.W != 0.02 || res.Reference.Box.H != 0.03 {
		t.Errorf("unexpected box %+v", res.Reference.Box)
	}
}

func TestParseAnalysisResultFallbacks(t *testing.T) {
	cases := map[string]string{
		"prose":      "I can see a field with some cows.",
		"broken":     `{"reference": {"label": "tag", "box": }`,
		"none":       `{"reference": {"label": "none", "confidence": 0, "box": {"x":0,"y":0,"w":0,"h":0}}}`,
		"empty box":  `{"reference": {"label": "tag", "confidence": 0.5, "box": {"x":0.1,"y":0.1,"w":0,"h":0.2}}}`,
		"empty text": "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res := ParseAnalysisResult(raw)
			if !res.Fallback {
				t.Fatalf("expected fallback, got %+v", res)
			}
			if res.Reference.Confidence != 0 {
				t.Errorf("fallback confidence = %g", res.Reference.Confidence)
			}
		})
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	in := "Sure! /* note */ {\"a\": [1, 2,], } trailing text"
	want := `{"a": [1, 2] }`
	if got := SanitizeModelJSON(in); got != want {
		t.Errorf("SanitizeModelJSON = %q, want %q", got, want)
	}
}

func TestParseAnalysisResultKeepsURLs(t *testing.T) {
	raw := `{
  "reference": {"label": "apriltag", "confidence": 0.9, "box": {"x": 0.4, "y": 0.5, "w": 0.02, "h": 0.03}}, // tag
  "description": "tag like https://april.eecs.umich.edu /* not a comment */"
}`
	res := ParseAnalysisResult(raw)
	if res.Fallback {
		t.Fatalf("unexpected fallback: %s", res.Description)
	}
	want := "tag like https://april.eecs.umich.edu /* not a comment */"
	if res.Description != want {
		t.Errorf("description = %q, want %q", res.Description, want)
	}
	if res.Reference.Box.W != 0.02 {
		t.Errorf("unexpected box %+v", res.Reference.Box)
	}
}

func TestStripCommentsEscapedQuote(t *testing.T) {
	in := `{"a": "say \"//hi\"", /* x */ "b": 1} // end`
	want := `{"a": "say \"//hi\"",  "b": 1} `
	if got := stripComments(in); got != want {
		t.Errorf("stripComments = %q, want %q", got, want)
	}
}
