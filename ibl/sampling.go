package ibl

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"iblbake/libutil"
)

// 1/(2pi), 1/pi
var invAtan = [2]float32{0.15915494309, 0.31830988618}

// sampleSphericalMap maps a unit direction to equirectangular texture
// coordinates. Row 0 of the map is the zenith.
func sampleSphericalMap(dir mgl32.Vec3) (u, v float32) {
	u = math32.Atan2(dir[2], dir[0])*invAtan[0] + 0.5
	v = 0.5 - math32.Asin(libutil.Clamp(dir[1], -1, 1))*invAtan[1]
	return u, v
}

// captureViews look from the origin through each cube face.
// Cube map face reference: https://www.khronos.org/opengl/wiki_opengl/images/CubeMapAxes.png
var captureViews = [6]mgl32.Mat4{
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{1.0, 0.0, 0.0}, mgl32.Vec3{0.0, -1.0, 0.0}),
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{-1.0, 0.0, 0.0}, mgl32.Vec3{0.0, -1.0, 0.0}),
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{0.0, 1.0, 0.0}, mgl32.Vec3{0.0, 0.0, 1.0}),
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{0.0, -1.0, 0.0}, mgl32.Vec3{0.0, 0.0, -1.0}),
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{0.0, 0.0, 1.0}, mgl32.Vec3{0.0, -1.0, 0.0}),
	mgl32.LookAtV(mgl32.Vec3{0.0, 0.0, 0.0}, mgl32.Vec3{0.0, 0.0, -1.0}, mgl32.Vec3{0.0, -1.0, 0.0}),
}

// FaceMatrix maps (sc, tc, 1) of a cube face to the world direction of
// that texel, where sc = 2u-1 and tc = 2v-1 are taken from the texel center.
// It is the inverse rotation of the face's capture view with the view
// direction flipped to point away from the camera.
func FaceMatrix(face int) mgl32.Mat3 {
	m := captureViews[face].Mat3().Transpose()
	m.SetCol(2, m.Col(2).Mul(-1))
	return m
}

// FaceDirection returns the normalized direction of texel coordinates
// (u, v) on a cube face.
func FaceDirection(face int, u, v float32) mgl32.Vec3 {
	return FaceMatrix(face).Mul3x1(mgl32.Vec3{2*u - 1, 2*v - 1, 1}).Normalize()
}

func radicalInverseVdC(bits uint32) float32 {
	bits = (bits << 16) | (bits >> 16)
	bits = ((bits & 0x55555555) << 1) | ((bits & 0xAAAAAAAA) >> 1)
	bits = ((bits & 0x33333333) << 2) | ((bits & 0xCCCCCCCC) >> 2)
	bits = ((bits & 0x0F0F0F0F) << 4) | ((bits & 0xF0F0F0F0) >> 4)
	bits = ((bits & 0x00FF00FF) << 8) | ((bits & 0xFF00FF00) >> 8)
	return float32(bits) * 2.3283064365386963e-10 // / 0x100000000
}

func hammersley(i, n uint32) (x, y float32) {
	return float32(i) / float32(n), radicalInverseVdC(i)
}

// importanceSampleGGX returns a half vector in tangent space, z is up.
func importanceSampleGGX(su, sv float32, roughness float32) mgl32.Vec3 {
	a := roughness * roughness

	phi := 2.0 * math32.Pi * su
	cosTheta := math32.Sqrt((1.0 - sv) / (1.0 + (a*a-1.0)*sv))
	sinTheta := math32.Sqrt(1.0 - cosTheta*cosTheta)

	// from spherical coordinates to cartesian coordinates
	return mgl32.Vec3{math32.Cos(phi) * sinTheta, math32.Sin(phi) * sinTheta, cosTheta}
}

// tangentFrame returns a tangent and bitangent for normal n.
func tangentFrame(n mgl32.Vec3) (t, b mgl32.Vec3) {
	up := mgl32.Vec3{0.0, 1.0, 0.0}
	if math32.Abs(n[1]) >= 0.999 {
		up = mgl32.Vec3{0.0, 0.0, 1.0}
	}
	t = up.Cross(n).Normalize()
	b = n.Cross(t)
	return t, b
}

// toWorld transforms a tangent space vector into the frame around n.
func toWorld(v, t, b, n mgl32.Vec3) mgl32.Vec3 {
	return t.Mul(v[0]).Add(b.Mul(v[1])).Add(n.Mul(v[2]))
}

func distributionGGX(ndoth, roughness float32) float32 {
	a := roughness * roughness
	a2 := a * a
	d := ndoth*ndoth*(a2-1.0) + 1.0
	return a2 / (math32.Pi * d * d)
}

// geometrySchlickGGX uses k = a^2/2 as is usual for image based lighting.
func geometrySchlickGGX(ndotv, roughness float32) float32 {
	k := (roughness * roughness) / 2.0
	return ndotv / (ndotv*(1.0-k) + k)
}

func geometrySmith(ndotv, ndotl, roughness float32) float32 {
	return geometrySchlickGGX(ndotv, roughness) * geometrySchlickGGX(ndotl, roughness)
}

// prefilterLod picks the source mip level whose texel solid angle matches
// the solid angle covered by one sample.
func prefilterLod(ndoth, hdotv, roughness float32, samples, size int) float32 {
	d := distributionGGX(ndoth, roughness)
	pdf := d*ndoth/(4.0*hdotv) + 0.0001
	saTexel := 4.0 * math32.Pi / (6.0 * float32(size*size))
	saSample := 1.0 / (float32(samples)*pdf + 0.0001)
	return math32.Max(0.5*math32.Log2(saSample/saTexel)+1.0, 0)
}
