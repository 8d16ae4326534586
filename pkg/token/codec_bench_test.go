package token

import (
	"fmt"
	"testing"
)

func BenchmarkCodec_Generate(b *testing.B) {
	c := MustNew(Options{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Generate(); err != nil {
			b.Fatalf("Generate() error = %v", err)
		}
	}
}

func BenchmarkCodec_VerifyChecksum(b *testing.B) {
	c := MustNew(Options{Prefix: "RSVP-", ChecksumSeed: 42})
	tok, err := c.Generate()
	if err != nil {
		b.Fatalf("Generate() error = %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !c.VerifyChecksum(tok) {
			b.Fatal("VerifyChecksum() = false")
		}
	}
}

func BenchmarkFingerprint(b *testing.B) {
	c := MustNew(Options{})
	tokens := make([]string, 1000)
	for i := range tokens {
		tokens[i], _ = c.Generate()
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Fingerprint(tokens[i%len(tokens)])
	}
}

func BenchmarkCodec_GenerateBulk(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("guests_%d", n), func(b *testing.B) {
			c := MustNew(Options{})
			ids := make([]string, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("guest-%d", i)
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				res := c.GenerateBulk(ids, BulkOptions{WithBackup: true})
				if len(res.Errors) != 0 {
					b.Fatalf("GenerateBulk() errors = %v", res.Errors)
				}
			}
		})
	}
}
