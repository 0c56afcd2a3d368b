package options

import "testing"

func TestResolve_UnsetFieldsInheritDefaults(t *testing.T) {
	d := New(WithLanguage("en"))
	r := d.Resolve(Request{Temperature: Unset, BeamSize: Unset})

	if r.Language != "en" {
		t.Errorf("Language = %q, want en", r.Language)
	}
	if r.Temperature != 0.0 {
		t.Errorf("Temperature = %v, want 0.0", r.Temperature)
	}
	if r.BeamSize != 5 {
		t.Errorf("BeamSize = %d, want 5", r.BeamSize)
	}
	if r.BestOf != 5 || r.NThreads != 4 {
		t.Errorf("BestOf/NThreads = %d/%d, want 5/4", r.BestOf, r.NThreads)
	}
}

func TestResolve_ExplicitFieldsOverrideDefaults(t *testing.T) {
	d := New(WithLanguage("en"), WithBeamSize(5))
	r := d.Resolve(Request{
		Language:    "tr",
		Temperature: 0.4,
		BeamSize:    1,
	})

	if r.Language != "tr" {
		t.Errorf("Language = %q, want tr", r.Language)
	}
	if r.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", r.Temperature)
	}
	if r.BeamSize != 1 {
		t.Errorf("BeamSize = %d, want 1", r.BeamSize)
	}
}

func TestResolve_RequestHasNoOverrideForServerOnlyFields(t *testing.T) {
	d := New(WithValenceBias(0.2), WithLogprobThreshold(-0.5))
	r := d.Resolve(Request{Temperature: Unset, BeamSize: Unset})

	if r.ValenceBias != 0.2 {
		t.Errorf("ValenceBias = %v, want 0.2", r.ValenceBias)
	}
	if r.LogprobThreshold != -0.5 {
		t.Errorf("LogprobThreshold = %v, want -0.5", r.LogprobThreshold)
	}
}

func TestNew_SeedDefaultsMatchDocumentedValues(t *testing.T) {
	d := New()
	r := d.Resolve(Request{Temperature: Unset, BeamSize: Unset})

	cases := map[string]struct {
		got, want float64
	}{
		"Temperature":       {r.Temperature, 0.0},
		"NoSpeechThreshold": {r.NoSpeechThreshold, 0.6},
		"LogprobThreshold":  {r.LogprobThreshold, -1.0},
		"EntropyThreshold":  {r.EntropyThreshold, 2.40},
		"ValenceBias":       {r.ValenceBias, 0.15},
	}
	for name, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", name, c.got, c.want)
		}
	}
}

func TestResolve_ProsodyFieldsDefaultAndOverride(t *testing.T) {
	d := New()
	base := Request{Temperature: Unset, BeamSize: Unset, MinPitchHz: Unset, MaxPitchHz: Unset, LPFAlpha: Unset, GenderThresholdHz: Unset}

	r := d.Resolve(base)
	if !r.EnableProsody {
		t.Error("EnableProsody should default to true")
	}
	if r.MinPitchHz != 50 || r.MaxPitchHz != 600 {
		t.Errorf("pitch range = [%v,%v], want [50,600]", r.MinPitchHz, r.MaxPitchHz)
	}
	if r.GenderThresholdHz != 170 {
		t.Errorf("GenderThresholdHz = %v, want 170", r.GenderThresholdHz)
	}

	disabled := false
	override := base
	override.EnableProsody = &disabled
	override.MinPitchHz = 80
	r2 := d.Resolve(override)
	if r2.EnableProsody {
		t.Error("EnableProsody override to false was not honored")
	}
	if r2.MinPitchHz != 80 {
		t.Errorf("MinPitchHz = %v, want 80", r2.MinPitchHz)
	}
	if r2.MaxPitchHz != 600 {
		t.Errorf("MaxPitchHz should remain the default, got %v", r2.MaxPitchHz)
	}
}

func TestResolve_IsPureAcrossCalls(t *testing.T) {
	d := New(WithLanguage("en"))
	first := d.Resolve(Request{Language: "tr", Temperature: Unset, BeamSize: Unset})
	second := d.Resolve(Request{Temperature: Unset, BeamSize: Unset})

	if first.Language != "tr" {
		t.Fatalf("first.Language = %q, want tr", first.Language)
	}
	if second.Language != "en" {
		t.Fatalf("second.Language = %q, want en (unaffected by first call)", second.Language)
	}
}
