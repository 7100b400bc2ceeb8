package telemetry

import "time"

// Sample is one throughput measurement.
type Sample struct {
	TimestampSeconds uint64  `json:"timestamp_seconds"`
	DownloadMbps     float64 `json:"download_mbps"`
	UploadMbps       float64 `json:"upload_mbps"`
}

// ZeroSample returns an empty sample stamped at now.
func ZeroSample(now time.Time) Sample {
	return Sample{TimestampSeconds: unixSeconds(now)}
}

func unixSeconds(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

// Ring is a fixed-capacity chronological buffer; pushing onto a full ring evicts the oldest sample.
// It is not safe for concurrent use.
type Ring struct {
	buf   []Sample
	start int
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Sample, capacity)}
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

func (r *Ring) Len() int {
	return r.size
}

func (r *Ring) Push(s Sample) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Samples returns a copy, oldest first.
func (r *Ring) Samples() []Sample {
	out := make([]Sample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Reset fills the ring with zero samples, one per interval, ending at now.
func (r *Ring) Reset(now time.Time, interval time.Duration) {
	r.start = 0
	r.size = 0
	n := len(r.buf)
	for i := n - 1; i >= 0; i-- {
		r.Push(ZeroSample(now.Add(-time.Duration(i) * interval)))
	}
}
