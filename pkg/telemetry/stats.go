package telemetry

import (
	"math"
	"sort"
)

// Summary is a throughput statistics snapshot.
type Summary struct {
	Count            int     `json:"count"`
	AvgDownloadMbps  float64 `json:"avg_download_mbps"`
	PeakDownloadMbps float64 `json:"peak_download_mbps"`
	P95DownloadMbps  float64 `json:"p95_download_mbps"`
	AvgUploadMbps    float64 `json:"avg_upload_mbps"`
	PeakUploadMbps   float64 `json:"peak_upload_mbps"`
}

// Summarize computes statistics over non-idle samples.
func Summarize(samples []Sample) Summary {
	downs := make([]float64, 0, len(samples))
	var sumDown, sumUp, peakDown, peakUp float64
	for _, s := range samples {
		if s.DownloadMbps == 0 && s.UploadMbps == 0 {
			continue
		}
		downs = append(downs, s.DownloadMbps)
		sumDown += s.DownloadMbps
		sumUp += s.UploadMbps
		peakDown = math.Max(peakDown, s.DownloadMbps)
		peakUp = math.Max(peakUp, s.UploadMbps)
	}

	if len(downs) == 0 {
		return Summary{}
	}

	sort.Float64s(downs)
	count := float64(len(downs))

	return Summary{
		Count:            len(downs),
		AvgDownloadMbps:  sumDown / count,
		PeakDownloadMbps: peakDown,
		P95DownloadMbps:  percentile(downs, 0.95),
		AvgUploadMbps:    sumUp / count,
		PeakUploadMbps:   peakUp,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}
