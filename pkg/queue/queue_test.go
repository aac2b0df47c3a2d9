package queue_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/clarity-digital-twin/clarity-backend/pkg/queue"
)

func newTestQueue() (*queue.Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queue.New(client, discardLogger()), mr
}

var _ = Describe("Queue", func() {
	It("round-trips a published message through Claim", func() {
		q, mr := newTestQueue()
		defer mr.Close()

		msg := queue.Message{ProcessingID: "p1", UserID: "u1", RawBlobPath: "raw_data/2026/07/31/u1/p1.json", EnqueuedAt: time.Now().UTC()}
		Expect(q.Publish(context.Background(), msg)).To(Succeed())

		claimed, err := q.Claim(context.Background(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).NotTo(BeNil())
		Expect(claimed.ProcessingID).To(Equal("p1"))
	})

	It("returns nil with no error when the claim window elapses empty", func() {
		q, mr := newTestQueue()
		defer mr.Close()

		claimed, err := q.Claim(context.Background(), 50*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(BeNil())
	})

	It("removes an acked message from the in-flight list permanently", func() {
		q, mr := newTestQueue()
		defer mr.Close()

		msg := queue.Message{ProcessingID: "p1", UserID: "u1", EnqueuedAt: time.Now().UTC()}
		Expect(q.Publish(context.Background(), msg)).To(Succeed())

		claimed, err := q.Claim(context.Background(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Ack(context.Background(), *claimed)).To(Succeed())

		n, err := q.Reclaim(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("reclaims an unacked in-flight message back onto the pending list", func() {
		q, mr := newTestQueue()
		defer mr.Close()

		msg := queue.Message{ProcessingID: "p1", UserID: "u1", EnqueuedAt: time.Now().UTC()}
		Expect(q.Publish(context.Background(), msg)).To(Succeed())

		_, err := q.Claim(context.Background(), time.Second)
		Expect(err).NotTo(HaveOccurred())

		n, err := q.Reclaim(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		depth, err := q.Depth(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(depth).To(Equal(int64(1)))
	})
})
