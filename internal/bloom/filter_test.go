package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("01HZ%06d", i))
	}
	for i := 0; i < 1000; i++ {
		if !f.MayContain(fmt.Sprintf("01HZ%06d", i)) {
			t.Fatalf("false negative for item %d", i)
		}
	}
	if f.Count() != 1000 {
		t.Errorf("expected count 1000, got %d", f.Count())
	}
}

func TestFilter_FalsePositiveRateNearTarget(t *testing.T) {
	f := New(2000, 0.01)
	for i := 0; i < 2000; i++ {
		f.Add(fmt.Sprintf("in-%d", i))
	}

	hits := 0
	for i := 0; i < 10000; i++ {
		if f.MayContain(fmt.Sprintf("out-%d", i)) {
			hits++
		}
	}
	if rate := float64(hits) / 10000; rate > 0.03 {
		t.Errorf("false positive rate %.4f far above target", rate)
	}
	if est := f.FalsePositiveRate(); est <= 0 || est > 0.03 {
		t.Errorf("unexpected estimated rate %.4f", est)
	}
}

func TestOptimalParameters_Defaults(t *testing.T) {
	bits, hashes := OptimalParameters(0, 0)
	wantBits, wantHashes := OptimalParameters(1000, 0.01)
	if bits != wantBits || hashes != wantHashes {
		t.Errorf("expected defaults (%d,%d), got (%d,%d)", wantBits, wantHashes, bits, hashes)
	}
	if bits, _ := OptimalParameters(1, 0.5); bits < 64 {
		t.Errorf("expected at least 64 bits, got %d", bits)
	}
}

func TestProperty_AddedIDsAreAlwaysFound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every added id is reported as possibly present", prop.ForAll(
		func(ids []string) bool {
			f := New(len(ids), 0.01)
			for _, id := range ids {
				f.Add(id)
			}
			for _, id := range ids {
				if !f.MayContain(id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
