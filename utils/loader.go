package utils

import (
	"fmt"
	"strings"

	"github.com/sbinet/npyio/npz"
	"go.dedis.ch/onet/v3/log"
)

// Array is a dense n-dimensional array read from a NumPy file, row-major
type Array struct {
	Shape []int
	Data  []float64
}

// Size is the number of elements described by the shape
func (a Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// LoadNpz reads the named arrays of a .npz archive, converted to float64.
// Names are given without the ".npy" suffix.
func LoadNpz(fname string, names ...string) (map[string]Array, error) {
	r, err := npz.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fname, err)
	}
	defer r.Close()

	keys := make(map[string]string)
	for _, k := range r.Keys() {
		keys[strings.TrimSuffix(k, ".npy")] = k
	}

	out := make(map[string]Array, len(names))
	for _, name := range names {
		key, ok := keys[name]
		if !ok {
			return nil, fmt.Errorf("%s: no array named %q", fname, name)
		}
		hdr := r.Header(key)
		if hdr == nil {
			return nil, fmt.Errorf("%s: missing header for %q", fname, name)
		}
		if hdr.Descr.Fortran {
			return nil, fmt.Errorf("%s: array %q is in fortran order", fname, name)
		}
		data, err := readAsFloat64(r, key, hdr.Descr.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: array %q: %w", fname, name, err)
		}
		arr := Array{Shape: append([]int(nil), hdr.Descr.Shape...), Data: data}
		if arr.Size() != len(data) {
			return nil, fmt.Errorf("%s: array %q has %d values for shape %v", fname, name, len(data), arr.Shape)
		}
		log.Lvl3("loaded", name, "dtype", hdr.Descr.Type, "shape", arr.Shape)
		out[name] = arr
	}
	return out, nil
}

// readAsFloat64 reads a npz entry in its on-disk element type then widens it
func readAsFloat64(r *npz.Reader, key, dtype string) ([]float64, error) {
	switch strings.TrimLeft(dtype, "<|=") {
	case "f8":
		var v []float64
		err := r.Read(key, &v)
		return v, err
	case "f4":
		var v []float32
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	case "i8":
		var v []int64
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	case "i4":
		var v []int32
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	case "i2":
		var v []int16
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	case "i1":
		var v []int8
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	case "u1":
		var v []uint8
		if err := r.Read(key, &v); err != nil {
			return nil, err
		}
		return widen(len(v), func(i int) float64 { return float64(v[i]) }), nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", dtype)
}

func widen(n int, at func(int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = at(i)
	}
	return out
}
