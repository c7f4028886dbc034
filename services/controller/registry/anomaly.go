// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"math"
	"sort"
	"time"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Anomaly Detection
// =============================================================================

// anomalyMinSamples is the fewest samples a valve needs before its
// readings can be scored. Below this the baseline is meaningless.
const anomalyMinSamples = 4

// anomalySigma is how many standard deviations above the baseline the
// latest reading must sit to count as anomalous.
const anomalySigma = 2.0

// Anomaly flags a valve whose latest reading broke from its recent
// baseline.
type Anomaly struct {
	ValveID   datatypes.ValveID `json:"valve_id"`
	Latest    float64           `json:"latest_ratio"`
	Baseline  float64           `json:"baseline_ratio"`
	Deviation float64           `json:"deviation"`
	At        time.Time         `json:"at"`
}

// Anomalies scores every valve's latest sample against the mean and
// standard deviation of its earlier samples in the history window.
// Valves with too few samples are skipped.
func (r *Registry) Anomalies() []Anomaly {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-historyMaxAge)
	var out []Anomaly

	for id, window := range r.history {
		var samples []Sample
		for _, s := range window {
			if s.At.After(cutoff) {
				samples = append(samples, s)
			}
		}
		if len(samples) < anomalyMinSamples {
			continue
		}

		latest := samples[len(samples)-1]
		baseline := samples[:len(samples)-1]

		mean := 0.0
		for _, s := range baseline {
			mean += s.Ratio
		}
		mean /= float64(len(baseline))

		variance := 0.0
		for _, s := range baseline {
			variance += (s.Ratio - mean) * (s.Ratio - mean)
		}
		stddev := math.Sqrt(variance / float64(len(baseline)))

		// A flat baseline gets a small floor so a genuine jump still
		// registers without flagging measurement jitter.
		threshold := mean + anomalySigma*math.Max(stddev, 0.01)
		if latest.Ratio > threshold {
			out = append(out, Anomaly{
				ValveID:   id,
				Latest:    latest.Ratio,
				Baseline:  mean,
				Deviation: latest.Ratio - mean,
				At:        latest.At,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ValveID < out[j].ValveID })
	return out
}
