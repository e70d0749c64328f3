package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `The snprintf function writes at most n bytes, including the terminating
        null byte, to the buffer pointed to by str. If the output was truncated due
        to this limit, the return value is the number of characters which would have
        been written to the final string if enough space had been available.`,
	"long": strings.Repeat(`Implementations shall ensure that “conforming programs”
        behave identically — regardless of locale — when the character set contains
        accented letters such as é, ü and ñ. `, 20),
}

func BenchmarkNormalize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Normalize(text)
			}
		})
	}
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		normalized := Normalize(text)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(normalized)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(normalized)
			}
		})
	}
}

func BenchmarkFoldVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	base := "Fonction snprintf écrit au plus n octets. "
	for _, size := range sizes {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Fold(text)
			}
		})
	}
}
