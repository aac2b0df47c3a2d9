package structured_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
)

var _ = Describe("Cache", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("misses before Set and hits after", func() {
		cache := structured.NewCache(client, time.Minute, true, discardLogger())
		ctx := context.Background()

		_, hit := cache.Get(ctx, "health_data", "u1#m1")
		Expect(hit).To(BeFalse())

		cache.Set(ctx, "health_data", "u1#m1", `{"metric_id":"m1"}`)
		val, hit := cache.Get(ctx, "health_data", "u1#m1")
		Expect(hit).To(BeTrue())
		Expect(val).To(Equal(`{"metric_id":"m1"}`))
	})

	It("evicts a key on Invalidate", func() {
		cache := structured.NewCache(client, time.Minute, true, discardLogger())
		ctx := context.Background()

		cache.Set(ctx, "health_data", "u1#m1", "payload")
		cache.Invalidate(ctx, "health_data", "u1#m1")

		_, hit := cache.Get(ctx, "health_data", "u1#m1")
		Expect(hit).To(BeFalse())
	})

	It("is a no-op in every direction when disabled", func() {
		cache := structured.NewCache(client, time.Minute, false, discardLogger())
		ctx := context.Background()

		cache.Set(ctx, "health_data", "u1#m1", "payload")
		_, hit := cache.Get(ctx, "health_data", "u1#m1")
		Expect(hit).To(BeFalse())
	})
})
