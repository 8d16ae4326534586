package ratelimit

import (
	"context"
	"fmt"
	"testing"

	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

func BenchmarkLimiter_Check(b *testing.B) {
	l, err := New(DefaultConfig(), NewMemoryStore(), WithLogger(logger.Discard()))
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	ids := make([]string, 1024)
	for i := range ids {
		ids[i] = fmt.Sprintf("198.51.%d.%d", i/256, i%256)
	}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			l.Check(ctx, ids[i%len(ids)])
			i++
		}
	})
}
