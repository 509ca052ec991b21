package main

import "testing"

func TestParseRowRanges(t *testing.T) {
	t.Parallel()

	got, err := parseRowRanges("218995-219006, 300000-300010")
	if err != nil {
		t.Fatalf("parseRowRanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ranges = %d, want 2", len(got))
	}
	if got[0].Start != 218995 || got[0].End != 219006 {
		t.Errorf("range 0 = %+v", got[0])
	}

	if ranges, err := parseRowRanges(""); err != nil || ranges != nil {
		t.Errorf("empty input = %v, %v; want nil, nil", ranges, err)
	}

	for _, bad := range []string{"5", "a-b", "10-5"} {
		if _, err := parseRowRanges(bad); err == nil {
			t.Errorf("parseRowRanges(%q) should fail", bad)
		}
	}
}
