package ibl

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"iblbake/libgpu"
)

// Uniform slots shared by the cube programs. Slots 0 to 2 hold the columns
// of the face matrix, slot 3 the parameters of the pass.
const (
	slotFace   = 0
	slotParams = 3
)

// fragmentDirection returns the world direction of the texel center of a
// cube face fragment.
func fragmentDirection(frag *libgpu.Fragment) mgl32.Vec3 {
	m := mgl32.Mat3FromCols(
		frag.Uniform(slotFace+0).Vec3(),
		frag.Uniform(slotFace+1).Vec3(),
		frag.Uniform(slotFace+2).Vec3(),
	)
	return m.Mul3x1(mgl32.Vec3{2*frag.U - 1, 2*frag.V - 1, 1}).Normalize()
}

// integrateBrdf returns the scale and bias to F0 of the split sum
// approximation for a view angle and roughness.
func integrateBrdf(ndotv, roughness float32, samples int) (scale, bias float32) {
	v := mgl32.Vec3{math32.Sqrt(1.0 - ndotv*ndotv), 0.0, ndotv}
	n := uint32(samples)

	for i := uint32(0); i < n; i++ {
		su, sv := hammersley(i, n)
		h := importanceSampleGGX(su, sv, roughness)
		l := h.Mul(2.0 * v.Dot(h)).Sub(v).Normalize()

		ndotl := math32.Max(l[2], 0.0)
		ndoth := math32.Max(h[2], 0.0)
		vdoth := math32.Max(v.Dot(h), 0.0)

		if ndotl > 0.0 {
			g := geometrySmith(ndotv, ndotl, roughness)
			gVis := (g * vdoth) / (ndoth * ndotv)
			fc := math32.Pow(1.0-vdoth, 5.0)

			scale += (1.0 - fc) * gVis
			bias += fc * gVis
		}
	}
	return scale / float32(n), bias / float32(n)
}

// brdfKernel: slot 0 = (samples, 0, 0, 0)
func brdfKernel(frag *libgpu.Fragment) [4]float32 {
	samples := int(frag.Uniform(0)[0])
	a, b := integrateBrdf(frag.U, frag.V, samples)
	return [4]float32{a, b, 0, 1}
}

func equirectKernel(frag *libgpu.Fragment) [4]float32 {
	u, v := sampleSphericalMap(fragmentDirection(frag))
	px := frag.Textures[0].Sample(u, v, 0, 0)
	px[3] = 1
	return px
}

// irradianceKernel: slot 3 = (sample delta, 0, 0, 0)
func irradianceKernel(frag *libgpu.Fragment) [4]float32 {
	n := fragmentDirection(frag)
	t, b := tangentFrame(n)
	delta := frag.Uniform(slotParams)[0]
	env := frag.Textures[0]

	var sum mgl32.Vec3
	count := 0
	for phi := float32(0.0); phi < 2.0*math32.Pi; phi += delta {
		sinPhi, cosPhi := math32.Sincos(phi)
		for theta := float32(0.0); theta < 0.5*math32.Pi; theta += delta {
			sinTheta, cosTheta := math32.Sincos(theta)
			// spherical to cartesian (in tangent space)
			tangentSample := mgl32.Vec3{sinTheta * cosPhi, sinTheta * sinPhi, cosTheta}
			u, v := sampleSphericalMap(toWorld(tangentSample, t, b, n))
			px := env.Sample(u, v, 0, 0)
			sum = sum.Add(mgl32.Vec3{px[0], px[1], px[2]}.Mul(cosTheta * sinTheta))
			count++
		}
	}
	sum = sum.Mul(math32.Pi / float32(count))
	return [4]float32{sum[0], sum[1], sum[2], 1}
}

// prefilterKernel: slot 3 = (roughness, samples, source face size, 0)
func prefilterKernel(frag *libgpu.Fragment) [4]float32 {
	params := frag.Uniform(slotParams)
	roughness := params[0]
	samples := int(params[1])
	srcSize := int(params[2])
	env := frag.Textures[0]

	n := fragmentDirection(frag)
	if roughness == 0 {
		px := env.SampleCube(n, 0)
		px[3] = 1
		return px
	}
	// assume view direction is always equal to outgoing direction
	v := n
	t, b := tangentFrame(n)

	var sum mgl32.Vec3
	var weight float32
	for i := 0; i < samples; i++ {
		su, sv := hammersley(uint32(i), uint32(samples))
		h := toWorld(importanceSampleGGX(su, sv, roughness), t, b, n)
		l := h.Mul(2.0 * v.Dot(h)).Sub(v).Normalize()

		ndotl := math32.Max(n.Dot(l), 0.0)
		if ndotl <= 0.0 {
			continue
		}
		ndoth := math32.Max(n.Dot(h), 0.0)
		hdotv := math32.Max(h.Dot(v), 0.0)
		lod := prefilterLod(ndoth, hdotv, roughness, samples, srcSize)

		px := env.SampleCube(l, lod)
		sum = sum.Add(mgl32.Vec3{px[0], px[1], px[2]}.Mul(ndotl))
		weight += ndotl
	}
	if weight > 0 {
		sum = sum.Mul(1.0 / weight)
	}
	return [4]float32{sum[0], sum[1], sum[2], 1}
}
