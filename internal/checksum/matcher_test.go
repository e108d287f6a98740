package checksum

import "testing"

func TestSumStable(t *testing.T) {
	a := Sum([]byte("ДОХОДЫ;1000"))
	if a != Sum([]byte("ДОХОДЫ;1000")) || a == Sum([]byte("ДОХОДЫ;1001")) {
		t.Fatal("hash not stable per content")
	}
	if len(a) != 64 || len(Short(a)) != 12 {
		t.Errorf("unexpected lengths %d/%d", len(a), len(Short(a)))
	}
}

func TestMatcher(t *testing.T) {
	data := []byte("payload")
	ok, err := NewChecksumMatcher(Sum(data)).Match(data)
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if _, err := NewChecksumMatcher("").Match(data); err == nil {
		t.Error("empty expectation accepted")
	}
}
