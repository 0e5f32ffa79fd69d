package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"

	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/workerstore"
)

// aobenchWidth/aobenchHeight are the fixed output dimensions of the AOBENCH
// renderer, matching the classic ambient-occlusion benchmark scene.
const (
	aobenchWidth  = 256
	aobenchHeight = 256
	aoNumSamples  = 8
	aoNumSubSamp  = 2
)

type vec3 struct{ x, y, z float64 }

func (a vec3) add(b vec3) vec3   { return vec3{a.x + b.x, a.y + b.y, a.z + b.z} }
func (a vec3) sub(b vec3) vec3   { return vec3{a.x - b.x, a.y - b.y, a.z - b.z} }
func (a vec3) scale(s float64) vec3 { return vec3{a.x * s, a.y * s, a.z * s} }
func (a vec3) dot(b vec3) float64 { return a.x*b.x + a.y*b.y + a.z*b.z }
func (a vec3) length() float64    { return math.Sqrt(a.dot(a)) }
func (a vec3) normalize() vec3 {
	l := a.length()
	if l == 0 {
		return a
	}
	return a.scale(1 / l)
}
func cross(a, b vec3) vec3 {
	return vec3{a.y*b.z - a.z*b.y, a.z*b.x - a.x*b.z, a.x*b.y - a.y*b.x}
}

type sphere struct {
	center vec3
	radius float64
}

type plane struct {
	point  vec3
	normal vec3
}

type isect struct {
	t      float64
	hit    bool
	point  vec3
	normal vec3
}

func (s sphere) intersect(ro, rd vec3, in isect) isect {
	rs := ro.sub(s.center)
	b := rs.dot(rd)
	c := rs.dot(rs) - s.radius*s.radius
	d := b*b - c
	if d <= 0 {
		return in
	}
	t := -b - math.Sqrt(d)
	if t > 0.0001 && t < in.t {
		in.t = t
		in.hit = true
		in.point = ro.add(rd.scale(t))
		in.normal = in.point.sub(s.center).normalize()
	}
	return in
}

func (p plane) intersect(ro, rd vec3, in isect) isect {
	d := -p.point.dot(p.normal)
	v := rd.dot(p.normal)
	if math.Abs(v) < 1e-17 {
		return in
	}
	t := -(ro.dot(p.normal) + d) / v
	if t > 0.0001 && t < in.t {
		in.t = t
		in.hit = true
		in.point = ro.add(rd.scale(t))
		in.normal = p.normal
	}
	return in
}

// aobenchScene is the fixed scene the classic ambient-occlusion benchmark
// renders: three spheres resting on an infinite plane.
var aobenchScene = struct {
	spheres []sphere
	ground  plane
}{
	spheres: []sphere{
		{vec3{-2, 0, -3.5}, 0.5},
		{vec3{-0.5, 0, -3}, 0.5},
		{vec3{1, 0, -2.2}, 0.5},
	},
	ground: plane{point: vec3{0, -0.5, 0}, normal: vec3{0, 1, 0}},
}

func orthoBasis(n vec3) (vec3, vec3, vec3) {
	basis1 := vec3{}
	switch {
	case n.x < 0.6 && n.x > -0.6:
		basis1 = vec3{1, 0, 0}
	case n.y < 0.6 && n.y > -0.6:
		basis1 = vec3{0, 1, 0}
	case n.z < 0.6 && n.z > -0.6:
		basis1 = vec3{0, 0, 1}
	default:
		basis1 = vec3{1, 0, 0}
	}
	basis2 := cross(n, basis1).normalize()
	basis1 = cross(n, basis2).normalize()
	return basis1, basis2, n
}

func ambientOcclusion(rng *rand.Rand, in isect) float64 {
	const eps = 0.0001
	p := in.point.add(in.normal.scale(eps))
	b1, b2, b3 := orthoBasis(in.normal)

	occlusion := 0.0
	for j := 0; j < aoNumSamples; j++ {
		for i := 0; i < aoNumSamples; i++ {
			theta := math.Sqrt(rng.Float64())
			phi := 2 * math.Pi * rng.Float64()

			x := math.Cos(phi) * theta
			y := math.Sin(phi) * theta
			z := math.Sqrt(1 - theta*theta)

			rd := vec3{
				x*b1.x + y*b2.x + z*b3.x,
				x*b1.y + y*b2.y + z*b3.y,
				x*b1.z + y*b2.z + z*b3.z,
			}

			occ := isect{t: 1e17}
			for _, s := range aobenchScene.spheres {
				occ = s.intersect(p, rd, occ)
			}
			occ = aobenchScene.ground.intersect(p, rd, occ)
			if occ.hit {
				occlusion++
			}
		}
	}

	return (float64(aoNumSamples*aoNumSamples) - occlusion) / float64(aoNumSamples*aoNumSamples)
}

// renderAOBenchImage renders the fixed AOBENCH scene into an aobenchWidth x
// aobenchHeight RGB image, with aoNumSubSamp x aoNumSubSamp subsamples per
// pixel. The random sequence is seeded deterministically so that repeated
// renders are reproducible.
func renderAOBenchImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, aobenchWidth, aobenchHeight))
	rng := rand.New(rand.NewSource(1))

	for y := 0; y < aobenchHeight; y++ {
		for x := 0; x < aobenchWidth; x++ {
			var total float64
			for sv := 0; sv < aoNumSubSamp; sv++ {
				for su := 0; su < aoNumSubSamp; su++ {
					px := (float64(x) + float64(su)/aoNumSubSamp - float64(aobenchWidth)/2) / (float64(aobenchWidth) / 2)
					py := -(float64(y) + float64(sv)/aoNumSubSamp - float64(aobenchHeight)/2) / (float64(aobenchHeight) / 2)

					rd := vec3{px, py, -1}.normalize()
					ro := vec3{0, 0, 0}

					in := isect{t: 1e17}
					for _, s := range aobenchScene.spheres {
						in = s.intersect(ro, rd, in)
					}
					in = aobenchScene.ground.intersect(ro, rd, in)

					if in.hit {
						total += ambientOcclusion(rng, in)
					}
				}
			}
			shade := total / float64(aoNumSubSamp*aoNumSubSamp)
			c := uint8(math.Min(shade, 1) * 255)
			img.SetRGBA(x, y, color.RGBA{c, c, c, 255})
		}
	}
	return img
}

// renderAOBench implements the AOBENCH renderer kind: a self-contained,
// deterministic ambient-occlusion render with no input files, encoded as
// PNG.
func renderAOBench(cfg Config, store *workerstore.Store, scratchDir string, files []modules.FileRef) (modules.FileId, int64, modules.ImageType, error) {
	img := renderAOBenchImage()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", 0, "", wrapInternal(err)
	}

	id, size, err := store.Put(buf.Bytes())
	if err != nil {
		return "", 0, "", err
	}
	return id, size, modules.ImagePNG, nil
}
