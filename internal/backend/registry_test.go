package backend_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
)

var _ = Describe("Registry", func() {
	Describe("NewRegistry", func() {
		It("should reject an empty backend list", func() {
			_, err := backend.NewRegistry(nil, nil)
			Expect(err).To(MatchError(backend.ErrNoBackends))
		})

		It("should reject a non-positive priority", func() {
			_, err := backend.NewRegistry([]backend.Descriptor{
				{Host: "a.example.com", Priority: 0},
			}, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should accept a valid descriptor list", func() {
			reg, err := backend.NewRegistry([]backend.Descriptor{
				{Host: "a.example.com", Priority: 1},
				{Host: "b.example.com", Priority: 2, APIKey: "secret"},
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.Len()).To(Equal(2))
		})
	})

	Describe("SnapshotAvailable", func() {
		var reg *backend.Registry

		BeforeEach(func() {
			var err error
			reg, err = backend.NewRegistry([]backend.Descriptor{
				{Host: "a.example.com", Priority: 1},
				{Host: "b.example.com", Priority: 1},
				{Host: "c.example.com", Priority: 2},
			}, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should report all backends available when none are throttling", func() {
			available, _, hasSoonest := reg.SnapshotAvailable(time.Now())
			Expect(available).To(HaveLen(3))
			Expect(hasSoonest).To(BeFalse())
		})

		It("should exclude a throttling backend", func() {
			now := time.Now()
			reg.MarkThrottled(0, 30, now)

			available, _, _ := reg.SnapshotAvailable(now)
			Expect(available).To(HaveLen(2))
			for _, a := range available {
				Expect(a.Index).NotTo(Equal(0))
			}
		})

		It("should clear throttling once retry_after has passed", func() {
			now := time.Now()
			reg.MarkThrottled(0, 1, now)

			available, _, _ := reg.SnapshotAvailable(now.Add(2 * time.Second))
			Expect(available).To(HaveLen(3))

			snap := reg.Snapshot()
			Expect(snap[0].IsThrottling).To(BeFalse())
		})

		It("should report the soonest retry_after when all backends are throttling", func() {
			now := time.Now()
			reg.MarkThrottled(0, 44, now)
			reg.MarkThrottled(1, 4, now)
			reg.MarkThrottled(2, 7, now)

			available, soonest, hasSoonest := reg.SnapshotAvailable(now)
			Expect(available).To(BeEmpty())
			Expect(hasSoonest).To(BeTrue())
			Expect(soonest).To(BeTemporally("~", now.Add(4*time.Second), time.Second))
		})

		It("should be safe for concurrent use", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					now := time.Now()
					if i%3 == 0 {
						reg.MarkThrottled(i%3, 1, now)
					} else {
						_, _, _ = reg.SnapshotAvailable(now)
					}
				}(i)
			}
			wg.Wait()
		})
	})

	Describe("MarkThrottled", func() {
		It("should make the backend unavailable with the given retry_after", func() {
			reg, _ := backend.NewRegistry([]backend.Descriptor{{Host: "a.example.com", Priority: 1}}, nil)
			now := time.Now()

			reg.MarkThrottled(0, 5, now)

			snap := reg.Snapshot()
			Expect(snap[0].IsThrottling).To(BeTrue())
			Expect(snap[0].RetryAfter).To(BeTemporally("~", now.Add(5*time.Second), time.Second))
		})

		It("should let the latest call win (idempotent under repeated 429s)", func() {
			reg, _ := backend.NewRegistry([]backend.Descriptor{{Host: "a.example.com", Priority: 1}}, nil)
			now := time.Now()

			reg.MarkThrottled(0, 5, now)
			reg.MarkThrottled(0, 30, now)

			snap := reg.Snapshot()
			Expect(snap[0].RetryAfter).To(BeTemporally("~", now.Add(30*time.Second), time.Second))
		})
	})

	Describe("RecordSuccess", func() {
		It("should clear throttling and increment the success counter", func() {
			reg, _ := backend.NewRegistry([]backend.Descriptor{{Host: "a.example.com", Priority: 1}}, nil)
			reg.MarkThrottled(0, 30, time.Now())

			reg.RecordSuccess(0)

			snap := reg.Snapshot()
			Expect(snap[0].IsThrottling).To(BeFalse())
			Expect(snap[0].SuccessfulCallCount).To(Equal(uint64(1)))
		})
	})

	Describe("RecordAttempt", func() {
		It("should increment the attempt counter", func() {
			reg, _ := backend.NewRegistry([]backend.Descriptor{{Host: "a.example.com", Priority: 1}}, nil)

			reg.RecordAttempt(0)
			reg.RecordAttempt(0)

			snap := reg.Snapshot()
			Expect(snap[0].Attempts).To(Equal(uint64(2)))
		})
	})

	Describe("BackendView", func() {
		It("should return the immutable identity fields", func() {
			reg, _ := backend.NewRegistry([]backend.Descriptor{
				{Host: "a.example.com", Priority: 1, APIKey: "K"},
			}, nil)

			host, priority, apiKey := reg.BackendView(0)
			Expect(host).To(Equal("a.example.com"))
			Expect(priority).To(Equal(1))
			Expect(apiKey).To(Equal("K"))
		})
	})
})
