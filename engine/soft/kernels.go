package soft

import (
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/typedesc"
)

// Closure signatures used by the stock kernels.
var (
	emissionSignature = ClosureSignature{Name: "emission"}

	diffuseSignature = ClosureSignature{
		Name:   "diffuse",
		Fields: []typedesc.TypeDesc{typedesc.TypeNormal},
	}

	microfacetSignature = ClosureSignature{
		Name: "microfacet",
		Fields: []typedesc.TypeDesc{
			typedesc.TypeString, // distribution
			typedesc.TypeNormal, // N
			typedesc.TypeVector, // U
			typedesc.TypeFloat,  // xalpha
			typedesc.TypeFloat,  // yalpha
			typedesc.TypeFloat,  // eta
			typedesc.TypeInt32,  // refract
		},
	}
)

// stockKernels pairs the embedded masters with their evaluation.
var stockKernels = map[string]Kernel{
	"noisetest": {Name: "noisetest", Eval: evalNoiseTest},
	"checker":   {Name: "checker", Eval: evalChecker},
	"matte":     {Name: "matte", Closures: []ClosureSignature{diffuseSignature}, Eval: evalMatte},
	"metal":     {Name: "metal", Closures: []ClosureSignature{microfacetSignature}, Eval: evalMetal},
	"emitter":   {Name: "emitter", Closures: []ClosureSignature{emissionSignature}, Eval: evalEmitter},
}

// noiseOffsets decorrelate the three channels of noisetest.
var noiseOffsets = [3]f32.Vec3{
	{0, 0, 0},
	{31.416, 17.23, 5.81},
	{-11.7, 47.1, 23.9},
}

func evalNoiseTest(x *Exec) error {
	sg := x.Globals()
	scale := x.Float("scale")
	minval := x.Float("minval")
	q := f32.Vec3{sg.U * scale, sg.V * scale, sg.Time}

	var noise func(f32.Vec3) float32
	switch kind := x.String("noisetype"); kind {
	case "perlin", "uperlin", "noise":
		noise = x.Noise
	case "cell", "cellnoise":
		noise = x.CellNoise
	default:
		return x.Errorf("unknown noise type %q", kind)
	}

	var c f32.Vec3
	for i, off := range noiseOffsets {
		n := noise(f32.Vec3{q[0] + off[0], q[1] + off[1], q[2] + off[2]})
		c[i] = minval + (1-minval)*n
	}
	x.SetVec3("Cout", c)
	return nil
}

func evalChecker(x *Exec) error {
	sg := x.Globals()
	scale := float64(x.Float("scale"))
	cx := int(math.Floor(float64(sg.U) * scale))
	cy := int(math.Floor(float64(sg.V) * scale))

	index := (cx + cy) & 1
	x.SetInt("index", int32(index))
	if index == 0 {
		x.SetVec3("Cout", x.Vec3("Ca"))
	} else {
		x.SetVec3("Cout", x.Vec3("Cb"))
	}
	return nil
}

func evalMatte(x *Exec) error {
	sg := x.Globals()
	w := scaleVec3(x.Vec3("Cs"), x.Float("Kd"))
	c, err := x.Closure("diffuse", w, sg.N)
	if err != nil {
		return err
	}
	x.SetCi(c)
	x.SetVec3("albedo", w)
	return nil
}

func evalMetal(x *Exec) error {
	sg := x.Globals()
	alpha := x.Float("roughness")
	cs := x.Vec3("Cs")
	c, err := x.Closure("microfacet", cs,
		x.String("distribution"), sg.N, sg.DPdu, alpha, alpha, x.Float("eta"), int32(0))
	if err != nil {
		return err
	}
	x.SetCi(c)
	x.SetVec3("albedo", cs)
	return nil
}

func evalEmitter(x *Exec) error {
	w := scaleVec3(x.Vec3("Cs"), x.Float("power"))
	c, err := x.Closure("emission", w)
	if err != nil {
		return err
	}
	x.SetCi(c)
	x.SetVec3("Cout", w)
	return nil
}

func scaleVec3(v f32.Vec3, s float32) f32.Vec3 {
	return f32.Vec3{v[0] * s, v[1] * s, v[2] * s}
}
