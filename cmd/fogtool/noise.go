package main

import (
	"math"
)

// valueNoise is seeded 2D gradient-free lattice noise in [0, 1].
type valueNoise struct {
	seed uint64
}

// lattice hashes an integer lattice point to [0, 1].
func (n valueNoise) lattice(x, z int64) float64 {
	h := n.seed ^ uint64(x)*0x9E3779B97F4A7C15 ^ uint64(z)*0xC2B2AE3D27D4EB4F
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	h *= 0xC4CEB9FE1A85EC53
	h ^= h >> 33
	return float64(h>>11) / float64(1<<53)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// At samples the noise at (x, z) with bilinear smoothstep interpolation.
func (n valueNoise) At(x, z float64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	ix, iz := int64(x0), int64(z0)
	tx, tz := smoothstep(x-x0), smoothstep(z-z0)

	bottom := lerp(n.lattice(ix, iz), n.lattice(ix+1, iz), tx)
	top := lerp(n.lattice(ix, iz+1), n.lattice(ix+1, iz+1), tx)
	return lerp(bottom, top, tz)
}

// Fractal sums octaves of noise, normalized back to [0, 1].
func (n valueNoise) Fractal(x, z float64, octaves int, persistence, lacunarity float64) float64 {
	total, maxValue := 0.0, 0.0
	amplitude, frequency := 1.0, 1.0
	for i := 0; i < octaves; i++ {
		total += n.At(x*frequency, z*frequency) * amplitude
		maxValue += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}
	if maxValue == 0 {
		return 0
	}
	return total / maxValue
}

// noisePattern renders a row-major '0'/'1' pattern: '1' where the noise at
// (x*scale, z*scale) exceeds threshold.
func noisePattern(cellsX, cellsZ int, seed int64, threshold, scale float64) string {
	n := valueNoise{seed: uint64(seed)}
	buf := make([]byte, 0, cellsX*cellsZ)
	for z := 0; z < cellsZ; z++ {
		for x := 0; x < cellsX; x++ {
			if n.Fractal(float64(x)*scale, float64(z)*scale, 3, 0.5, 2) > threshold {
				buf = append(buf, '1')
			} else {
				buf = append(buf, '0')
			}
		}
	}
	return string(buf)
}
