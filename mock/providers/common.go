package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// fakeWords feeds mock chat replies with interior-design vocabulary.
var fakeWords = []string{
	"warm", "oak", "flooring", "with", "linen", "curtains", "and", "a",
	"low", "sofa", "in", "sage", "green", "balanced", "by", "brass",
	"accents", "soft", "lighting", "keeps", "the", "room", "calm",
}

// fakeSentence joins n random words.
func fakeSentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fakeWords[rand.IntN(len(fakeWords))]
	}
	return strings.Join(words, " ") + "."
}

var (
	pngOnce  sync.Once
	pngBytes []byte
)

// fakePNG returns a small gradient PNG, encoded once.
func fakePNG() []byte {
	pngOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 160, A: 255})
			}
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		pngBytes = buf.Bytes()
	})
	return pngBytes
}

// disrupt applies the configured latency and reports whether this request
// should fail.
func (c Config) disrupt() bool {
	if c.LatencyMS > 0 {
		time.Sleep(time.Duration(c.LatencyMS) * time.Millisecond)
	}
	return c.ErrorRate > 0 && rand.Float64() < c.ErrorRate
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the OpenAI error envelope the SDK decodes.
func writeError(w http.ResponseWriter, status int, msg, typ string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{
		"message": msg,
		"type":    typ,
		"code":    typ,
	}})
}
