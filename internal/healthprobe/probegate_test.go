package healthprobe

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("probeGate", func() {
	It("keeps allowing probes below the failure threshold", func() {
		g := newProbeGate(2, time.Second)
		now := time.Unix(0, 0)

		Expect(g.recordFailure(now)).To(BeFalse())
		Expect(g.allow(now)).To(BeTrue())
	})

	It("trips and blocks once the failure threshold is reached", func() {
		g := newProbeGate(2, time.Second)
		now := time.Unix(0, 0)

		g.recordFailure(now)
		Expect(g.recordFailure(now)).To(BeTrue())
		Expect(g.allow(now)).To(BeFalse())
	})

	It("allows a probe again once resetTimeout has elapsed", func() {
		g := newProbeGate(1, time.Second)
		now := time.Unix(0, 0)

		g.recordFailure(now)
		Expect(g.allow(now.Add(2 * time.Second))).To(BeTrue())
	})

	It("resets the failure streak on success", func() {
		g := newProbeGate(2, time.Second)
		now := time.Unix(0, 0)

		g.recordFailure(now)
		g.recordSuccess()

		Expect(g.recordFailure(now)).To(BeFalse())
	})
})
