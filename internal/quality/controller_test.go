package quality

import (
	"testing"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

func TestDegradeStepsDownOneRungPerBadSample(t *testing.T) {
	c := New()
	bad := models.QualitySample{PacketLossPct: 8, RTTMs: 260, JitterMs: 35}

	state, changed := c.Observe(bad)
	if !changed || state != models.QualityHD720 {
		t.Fatalf("expected HD_1080 -> HD_720, got %v (changed=%v)", state, changed)
	}

	state, changed = c.Observe(bad)
	if !changed || state != models.QualitySD480 {
		t.Fatalf("expected HD_720 -> SD_480, got %v (changed=%v)", state, changed)
	}

	// Already at the bottom rung: another bad sample is a no-op.
	_, changed = c.Observe(bad)
	if changed {
		t.Fatal("expected no change when already at SD_480")
	}
}

func TestRecoveryRequiresEightConsecutiveGoodSamples(t *testing.T) {
	c := New()
	c.ForceState(models.QualitySD480)
	good := models.QualitySample{PacketLossPct: 0.8, RTTMs: 70, JitterMs: 5}

	for i := 0; i < GoodSamplesToRecover-1; i++ {
		_, changed := c.Observe(good)
		if changed {
			t.Fatalf("unexpected change on good sample %d", i+1)
		}
	}

	state, changed := c.Observe(good)
	if !changed || state != models.QualityRecovering {
		t.Fatalf("expected RECOVERING on the 8th consecutive good sample, got %v (changed=%v)", state, changed)
	}
}

func TestNeitherGoodNorBadResetsCounterWithoutChange(t *testing.T) {
	c := New()
	c.ForceState(models.QualitySD480)
	good := models.QualitySample{PacketLossPct: 0.8, RTTMs: 70, JitterMs: 5}
	neutral := models.QualitySample{PacketLossPct: 3, RTTMs: 180, JitterMs: 20}

	for i := 0; i < GoodSamplesToRecover-1; i++ {
		c.Observe(good)
	}
	if _, changed := c.Observe(neutral); changed {
		t.Fatal("neutral sample must never itself report a change")
	}

	// The good streak was reset by the neutral sample, so one more
	// good sample must not trigger recovery yet.
	if _, changed := c.Observe(good); changed {
		t.Fatal("good streak should have been reset by the neutral sample")
	}
}

func TestCompleteRecoveryTransitionsToHD1080(t *testing.T) {
	c := New()
	c.ForceState(models.QualityRecovering)
	c.CompleteRecovery()
	if c.Current() != models.QualityHD1080 {
		t.Fatalf("expected HD_1080 after CompleteRecovery, got %v", c.Current())
	}
}

func TestAlreadyAtTopNeverReportsRecovering(t *testing.T) {
	c := New() // starts at HD_1080
	good := models.QualitySample{PacketLossPct: 0.8, RTTMs: 70, JitterMs: 5}
	for i := 0; i < GoodSamplesToRecover+2; i++ {
		if _, changed := c.Observe(good); changed {
			t.Fatal("already at HD_1080, a good streak must never report a change")
		}
	}
}
