package intent

import "testing"

func TestCanonicalizeMapSortsKeys(t *testing.T) {
	t.Parallel()

	got := CanonicalizeMap(map[string]any{
		"zebra": "z",
		"alpha": "a",
		"mid":   "m",
	})
	want := "alpha=a; mid=m; zebra=z"
	if got != want {
		t.Errorf("CanonicalizeMap() = %q, want %q", got, want)
	}
}

func TestCanonicalizeMapNested(t *testing.T) {
	t.Parallel()

	got := CanonicalizeMap(map[string]any{
		"query": map[string]any{
			"table": "users",
			"limit": float64(10),
		},
		"dry_run": true,
	})
	want := "dry_run=true; query.limit=10; query.table=users"
	if got != want {
		t.Errorf("CanonicalizeMap() = %q, want %q", got, want)
	}
}

func TestCanonicalizeMapLists(t *testing.T) {
	t.Parallel()

	got := CanonicalizeMap(map[string]any{
		"cols": []any{"id", "email"},
	})
	want := "cols[0]=id; cols[1]=email"
	if got != want {
		t.Errorf("CanonicalizeMap() = %q, want %q", got, want)
	}
}

func TestCanonicalizeMapSkipsNils(t *testing.T) {
	t.Parallel()

	got := CanonicalizeMap(map[string]any{
		"a": "x",
		"b": nil,
		"c": map[string]any{"d": nil},
	})
	want := "a=x"
	if got != want {
		t.Errorf("CanonicalizeMap() = %q, want %q", got, want)
	}
}

func TestCanonicalizeMapDeterministic(t *testing.T) {
	t.Parallel()

	m := map[string]any{
		"x": []any{map[string]any{"k": "v"}, float64(2.5)},
		"y": map[string]any{"b": false, "a": "1"},
	}
	first := CanonicalizeMap(m)
	for i := 0; i < 20; i++ {
		if got := CanonicalizeMap(m); got != first {
			t.Fatalf("iteration %d: CanonicalizeMap() = %q, want %q", i, got, first)
		}
	}
}

func TestCanonicalizeMapEmpty(t *testing.T) {
	t.Parallel()

	if got := CanonicalizeMap(nil); got != "" {
		t.Errorf("CanonicalizeMap(nil) = %q, want empty", got)
	}
	if got := CanonicalizeMap(map[string]any{}); got != "" {
		t.Errorf("CanonicalizeMap(empty) = %q, want empty", got)
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := func() Event {
		return Event{
			ID:            NewEventID(),
			SchemaVersion: SchemaV12,
			TenantID:      "acme",
			Actor:         Actor{ID: "agent-1", Type: "agent"},
			Action:        "read",
			Resource:      Resource{Type: "database"},
			Data:          Data{Sensitivity: []string{"internal"}},
			Risk:          Risk{Authn: "required"},
		}
	}

	if err := func() error { e := valid(); return e.Validate() }(); err != nil {
		t.Fatalf("valid event: Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"bad schema", func(e *Event) { e.SchemaVersion = "v9.9" }},
		{"missing tenant", func(e *Event) { e.TenantID = "" }},
		{"missing actor type", func(e *Event) { e.Actor.Type = "" }},
		{"missing action", func(e *Event) { e.Action = "" }},
		{"missing resource type", func(e *Event) { e.Resource.Type = "" }},
		{"missing sensitivity", func(e *Event) { e.Data.Sensitivity = nil }},
		{"missing authn", func(e *Event) { e.Risk.Authn = "" }},
		{"rate limit on old schema", func(e *Event) {
			e.SchemaVersion = SchemaV11
			e.RateLimit = &RateLimitContext{CallsLastMinute: 3, WindowSeconds: 60}
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := valid()
			tt.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}
