package bundle

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(src string) *Record {
	return &Record{Source: src, Deps: map[string]string{}}
}

func baseBundle() *Bundle {
	return &Bundle{
		Version: "1",
		Entry:   []string{"a"},
		Modules: map[string]*Record{
			"a": rec("src_a"),
			"b": rec("src_b"),
		},
	}
}

func TestApplyDeltaScenario(t *testing.T) {
	base := baseBundle()
	c := rec("src_c")
	diff := &Payload{
		From:    "1",
		To:      "2",
		Modules: map[string]*Record{"b": nil, "c": c},
	}

	got, err := Apply(base, diff)
	require.NoError(t, err)

	want := &Bundle{
		Version: "2",
		Entry:   []string{"a"},
		Modules: map[string]*Record{"a": base.Modules["a"], "c": c},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
	_, hasB := got.Modules["b"]
	assert.False(t, hasB)
}

func TestApplyNilPayloadIsNoop(t *testing.T) {
	base := baseBundle()
	before := base.Clone()

	got, err := Apply(base, nil)
	require.NoError(t, err)
	assert.Same(t, base, got)
	if diff := cmp.Diff(before, got); diff != "" {
		t.Errorf("bundle changed (-before +after):\n%s", diff)
	}
}

func TestApplyEmptyDeltaIsIdempotent(t *testing.T) {
	base := baseBundle()
	before := base.Clone()

	got, err := Apply(base, &Payload{From: "1", To: "1", Modules: map[string]*Record{}})
	require.NoError(t, err)
	if diff := cmp.Diff(before, got); diff != "" {
		t.Errorf("bundle changed (-before +after):\n%s", diff)
	}
}

func TestApplyVersionMismatch(t *testing.T) {
	base := baseBundle()
	before := base.Clone()

	_, err := Apply(base, &Payload{
		From:    "0",
		To:      "2",
		Entry:   []string{"z"},
		Modules: map[string]*Record{"a": nil},
	})

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, Version("1"), perr.Requested)
	assert.Equal(t, Version("0"), perr.Received)
	if diff := cmp.Diff(before, base); diff != "" {
		t.Errorf("base modified on protocol error (-before +after):\n%s", diff)
	}
}

func TestApplyDeltaWithoutFromIsRejected(t *testing.T) {
	_, err := Apply(baseBundle(), &Payload{To: "2"})
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestApplyFullPayloadReplacesVersionAndEntry(t *testing.T) {
	base := baseBundle()
	x := rec("src_x")

	got, err := Apply(base, &Payload{
		Version: "9",
		Entry:   []string{"x"},
		Modules: map[string]*Record{"x": x},
	})
	require.NoError(t, err)
	assert.Equal(t, Version("9"), got.Version)
	assert.Equal(t, []string{"x"}, got.Entry)
	// Full payloads still merge per name.
	assert.Len(t, got.Modules, 3)
	assert.Same(t, x, got.Modules["x"])
}

func TestApplyEntryRules(t *testing.T) {
	got, err := Apply(baseBundle(), &Payload{From: "1", To: "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Entry, "entry kept when diff has none")

	got, err = Apply(baseBundle(), &Payload{From: "1", To: "2", Entry: []string{}})
	require.NoError(t, err)
	assert.Empty(t, got.Entry, "explicit empty entry replaces")
	assert.NotNil(t, got.Entry)
}

func TestApplyEntryIsCopied(t *testing.T) {
	entry := []string{"a", "b"}
	got, err := Apply(New(), &Payload{Version: "1", Entry: entry})
	require.NoError(t, err)
	entry[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, got.Entry)
}

func TestApplyTombstoneOfAbsentName(t *testing.T) {
	got, err := Apply(baseBundle(), &Payload{From: "1", To: "2", Modules: map[string]*Record{"nope": nil}})
	require.NoError(t, err)
	assert.Len(t, got.Modules, 2)
}

func TestApplyNilBase(t *testing.T) {
	got, err := Apply(nil, &Payload{Version: "3", Entry: []string{"a"}, Modules: map[string]*Record{"a": rec("x")}})
	require.NoError(t, err)
	assert.Equal(t, Version("3"), got.Version)
	assert.Len(t, got.Modules, 1)
}

func TestPayloadBundleDropsTombstones(t *testing.T) {
	p := &Payload{Version: "4", Entry: []string{"a"}, Modules: map[string]*Record{"a": rec("x"), "gone": nil}}
	b := p.Bundle()
	assert.Equal(t, Version("4"), b.Version)
	assert.Len(t, b.Modules, 1)
	assert.Contains(t, b.Modules, "a")
}

func TestRecordResolve(t *testing.T) {
	r := &Record{Deps: map[string]string{"./util": "lib/util.js", "empty": ""}}
	assert.Equal(t, "lib/util.js", r.Resolve("./util"))
	assert.Equal(t, "react", r.Resolve("react"))
	assert.Equal(t, "empty", r.Resolve("empty"))
}

func TestVersionJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		out  string
	}{
		{`"abc"`, "abc", `"abc"`},
		{`12`, "12", `12`},
		{`"12"`, "12", `12`},
		{`1.5`, "1.5", `1.5`},
		{`null`, "", `null`},
	}
	for _, tt := range tests {
		var v Version
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v), tt.in)
		assert.Equal(t, tt.want, v, tt.in)
		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, tt.out, string(out), tt.in)
	}

	var v Version
	assert.Error(t, json.Unmarshal([]byte(`true`), &v))
}
