package speaker

import "testing"

func TestAssignOrAdd_SameVectorReusesCluster(t *testing.T) {
	c := New(DefaultThreshold)
	v := [8]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}

	id1 := c.AssignOrAdd(v)
	id2 := c.AssignOrAdd(v)
	if id1 != id2 {
		t.Fatalf("expected identical vectors to merge into one cluster, got %s and %s", id1, id2)
	}
	if len(c.Clusters()) != 1 {
		t.Fatalf("expected exactly 1 cluster, got %d", len(c.Clusters()))
	}
	if c.Clusters()[0].Count != 2 {
		t.Fatalf("expected count 2, got %d", c.Clusters()[0].Count)
	}
}

func TestAssignOrAdd_DissimilarVectorsSplit(t *testing.T) {
	c := New(DefaultThreshold)
	a := [8]float64{1, 0, 0, 0, 0, 0, 0, 0}
	b := [8]float64{0, 0, 0, 0, 0, 0, 0, 1}

	idA := c.AssignOrAdd(a)
	idB := c.AssignOrAdd(b)
	if idA == idB {
		t.Fatalf("expected orthogonal vectors to form separate clusters")
	}
	if len(c.Clusters()) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(c.Clusters()))
	}
}

func TestAssignOrAdd_ZeroNormVectorAlwaysNewCluster(t *testing.T) {
	c := New(DefaultThreshold)
	zero := [8]float64{}

	id1 := c.AssignOrAdd(zero)
	id2 := c.AssignOrAdd(zero)
	if id1 == id2 {
		t.Fatalf("expected zero-norm vectors to never merge (similarity always 0), got same id %s", id1)
	}
}

func TestAssignOrAdd_DeterministicAcrossFreshClusterers(t *testing.T) {
	vecs := [][8]float64{
		{0.9, 0.1, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0.1, 0.9},
		{0.85, 0.15, 0, 0, 0, 0, 0, 0},
	}

	run := func() []string {
		c := New(DefaultThreshold)
		ids := make([]string, len(vecs))
		for i, v := range vecs {
			ids[i] = c.AssignOrAdd(v)
		}
		return ids
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("clustering not deterministic at index %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestAssignOrAdd_MonotonicIDs(t *testing.T) {
	c := New(DefaultThreshold)
	for i := 0; i < 3; i++ {
		v := [8]float64{}
		v[i%8] = float64(i + 1)
		id := c.AssignOrAdd(v)
		want := "spk_" + string(rune('0'+i))
		if id != want {
			t.Fatalf("expected id %s, got %s", want, id)
		}
	}
}
